package primitives

import (
	"context"
	"fmt"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// modificationEvents are platform events that alter a resource in place.
var modificationEvents = map[string]bool{
	"ModifyDBInstance":            true,
	"UpdateFunctionConfiguration": true,
	"ModifyInstanceAttribute":     true,
	"PutBucketPolicy":             true,
}

// deploymentEvents are platform events that roll out new code or tasks.
var deploymentEvents = map[string]bool{
	"CreateDeployment": true,
	"UpdateService":    true,
	"RunTask":          true,
}

// changesProbe buckets the recent change history into modifications and
// deployments, tracking how long ago the newest change landed.
type changesProbe struct{}

func (changesProbe) Name() string { return "check_recent_changes" }

func (changesProbe) Capabilities() []Capability {
	return []Capability{CapRecentChanges}
}

func (c changesProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(c.Name(), ref, errMissingResource)), nil
	}
	window, err := params.window(24 * time.Hour)
	if err != nil {
		return nil, err
	}

	events, err := rp.RecentChanges(ctx, ref, window)
	if err != nil {
		return failOrFatal(c.Name(), ref, err)
	}

	var modifications, deployments []provider.ChangeEvent
	for _, ev := range events {
		switch {
		case modificationEvents[ev.EventName]:
			modifications = append(modifications, ev)
		case deploymentEvents[ev.EventName]:
			deployments = append(deployments, ev)
		}
	}

	values := map[string]any{
		"modification_count": len(modifications),
		"deployment_count":   len(deployments),
		"has_recent_changes": len(modifications) > 0 || len(deployments) > 0,
		"modifications":      eventSummaries(lastN(modifications, 5)),
		"deployments":        eventSummaries(lastN(deployments, 5)),
		"window_seconds":     int(window.Duration().Seconds()),
	}
	if newest, ok := newestEvent(events); ok {
		values["last_change_at"] = newest.OccurredAt.Format(time.RFC3339)
		values["minutes_since_last_change"] = time.Since(newest.OccurredAt).Minutes()
	}
	return facts(okFact(c.Name(), ref, values)), nil
}

// configDiffProbe reports which configuration keys the latest modification
// changed, checked against the resource's current configuration.
type configDiffProbe struct{}

func (configDiffProbe) Name() string { return "diff_configuration" }

func (configDiffProbe) Capabilities() []Capability {
	return []Capability{CapConfiguration, CapRecentChanges}
}

func (d configDiffProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(d.Name(), ref, errMissingResource)), nil
	}
	window, err := params.window(24 * time.Hour)
	if err != nil {
		return nil, err
	}

	config, err := rp.Configuration(ctx, ref)
	if err != nil {
		return failOrFatal(d.Name(), ref, err)
	}
	values := map[string]any{
		"config_keys": len(config),
	}

	events, err := rp.RecentChanges(ctx, ref, window)
	if err != nil {
		if provider.IsAuthError(err) {
			return nil, err
		}
		return facts(partialFact(d.Name(), ref, values, fmt.Sprintf("change history unavailable: %v", err))), nil
	}

	var changed []map[string]any
	newest, ok := newestEvent(events)
	if ok {
		for key, after := range newest.After {
			before := newest.Before[key]
			if before == after {
				continue
			}
			changed = append(changed, map[string]any{
				"key":     key,
				"before":  before,
				"after":   after,
				"current": config[key],
			})
		}
		values["change_event"] = newest.EventName
	}
	values["changed_keys"] = changed
	values["changed_key_count"] = len(changed)
	values["has_drift"] = len(changed) > 0

	return facts(okFact(d.Name(), ref, values)), nil
}

// deploymentProbe narrows the change history to deployment events.
type deploymentProbe struct{}

func (deploymentProbe) Name() string { return "check_deployment_status" }

func (deploymentProbe) Capabilities() []Capability {
	return []Capability{CapRecentChanges}
}

func (d deploymentProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(d.Name(), ref, errMissingResource)), nil
	}
	window, err := params.window(24 * time.Hour)
	if err != nil {
		return nil, err
	}

	events, err := rp.RecentChanges(ctx, ref, window)
	if err != nil {
		return failOrFatal(d.Name(), ref, err)
	}

	var deployments []provider.ChangeEvent
	for _, ev := range events {
		if deploymentEvents[ev.EventName] {
			deployments = append(deployments, ev)
		}
	}

	values := map[string]any{
		"deployment_count":      len(deployments),
		"has_recent_deployment": len(deployments) > 0,
		"deployments":           eventSummaries(lastN(deployments, 5)),
	}
	if newest, ok := newestEvent(deployments); ok {
		values["last_deployment_at"] = newest.OccurredAt.Format(time.RFC3339)
		values["minutes_since_last_deploy"] = time.Since(newest.OccurredAt).Minutes()
	}
	return facts(okFact(d.Name(), ref, values)), nil
}

func lastN(events []provider.ChangeEvent, n int) []provider.ChangeEvent {
	if len(events) <= n {
		return events
	}
	return events[len(events)-n:]
}

func newestEvent(events []provider.ChangeEvent) (provider.ChangeEvent, bool) {
	if len(events) == 0 {
		return provider.ChangeEvent{}, false
	}
	newest := events[0]
	for _, ev := range events[1:] {
		if ev.OccurredAt.After(newest.OccurredAt) {
			newest = ev
		}
	}
	return newest, true
}

func eventSummaries(events []provider.ChangeEvent) []map[string]any {
	summaries := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		summaries = append(summaries, map[string]any{
			"event_name":  ev.EventName,
			"actor":       ev.Actor,
			"occurred_at": ev.OccurredAt.Format(time.RFC3339),
		})
	}
	return summaries
}
