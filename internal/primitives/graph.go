package primitives

import (
	"context"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// dependenciesProbe walks the resource's dependency edges and counts
// unhealthy ones.
type dependenciesProbe struct{}

func (dependenciesProbe) Name() string { return "trace_dependencies" }

func (dependenciesProbe) Capabilities() []Capability {
	return []Capability{CapDependencies}
}

func (d dependenciesProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(d.Name(), ref, errMissingResource)), nil
	}

	deps, err := rp.Dependencies(ctx, ref)
	if err != nil {
		return failOrFatal(d.Name(), ref, err)
	}

	unhealthy := 0
	summaries := make([]map[string]any, 0, len(deps))
	for _, dep := range deps {
		if !dep.Healthy {
			unhealthy++
		}
		summaries = append(summaries, map[string]any{
			"resource": dep.Resource.String(),
			"role":     dep.Role,
			"healthy":  dep.Healthy,
		})
	}

	values := map[string]any{
		"dependency_count":      len(deps),
		"unhealthy_count":       unhealthy,
		"has_dependency_issues": unhealthy > 0,
		"dependencies":          summaries,
	}
	return facts(okFact(d.Name(), ref, values)), nil
}

// connectivityProbe checks reachability from the resource to an explicit
// target when one is bound, otherwise to each of its dependencies.
type connectivityProbe struct{}

func (connectivityProbe) Name() string { return "check_connectivity" }

func (connectivityProbe) Capabilities() []Capability {
	return []Capability{CapConnectivity, CapDependencies}
}

func (c connectivityProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(c.Name(), ref, errMissingResource)), nil
	}
	targetType, err := params.stringVal("target_type")
	if err != nil {
		return nil, err
	}
	targetID, err := params.stringVal("target_id")
	if err != nil {
		return nil, err
	}

	var targets []models.ResourceRef
	if targetType != "" || targetID != "" {
		targets = append(targets, models.ResourceRef{Type: targetType, ID: targetID})
	} else {
		deps, err := rp.Dependencies(ctx, ref)
		if err != nil {
			return failOrFatal(c.Name(), ref, err)
		}
		for _, dep := range deps {
			targets = append(targets, dep.Resource)
		}
		if len(targets) > 3 {
			targets = targets[:3]
		}
	}
	if len(targets) == 0 {
		return facts(models.FailedFact(c.Name(), ref, errMissingTarget)), nil
	}

	unreachable := 0
	checks := make([]map[string]any, 0, len(targets))
	for _, target := range targets {
		res, err := rp.Connectivity(ctx, ref, target)
		if err != nil {
			if provider.IsAuthError(err) {
				return nil, err
			}
			unreachable++
			checks = append(checks, map[string]any{
				"target": target.String(),
				"error":  err.Error(),
			})
			continue
		}
		if !res.Reachable {
			unreachable++
		}
		checks = append(checks, map[string]any{
			"target":     target.String(),
			"reachable":  res.Reachable,
			"latency_ms": res.LatencyMS,
			"detail":     res.Detail,
		})
	}

	values := map[string]any{
		"checked":       len(targets),
		"unreachable":   unreachable,
		"all_reachable": unreachable == 0,
		"checks":        checks,
	}
	return facts(okFact(c.Name(), ref, values)), nil
}
