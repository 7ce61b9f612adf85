// Package primitives implements the diagnostic probe library: named,
// idempotent, read-only capabilities that turn provider reads into facts.
// Probes are provider-agnostic; per-resource-type metric resolution lives
// in the probe's own mapping table, never in the planner.
package primitives

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// Capability names one provider read a primitive depends on.
type Capability string

const (
	CapMetricSeries  Capability = "metric_series"
	CapRecentChanges Capability = "recent_changes"
	CapDependencies  Capability = "dependencies"
	CapConfiguration Capability = "configuration"
	CapConnectivity  Capability = "connectivity"
	CapScalingStatus Capability = "scaling_status"
	CapCostSeries    Capability = "cost_series"
	CapTopConsumers  Capability = "top_consumers"
)

// Params carries the bound arguments for one primitive invocation. Values
// come from the planner's context binding; JSON round-trips decode numbers
// as float64, so the typed getters accept both.
type Params map[string]any

// ErrBadParams marks a violated parameter contract: the caller bound a
// value of the wrong type. This is a programmer error and is fatal, unlike
// missing context which degrades gracefully into a failed fact.
var ErrBadParams = errors.New("invalid primitive parameters")

func (p Params) stringVal(key string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrBadParams, key, raw)
	}
	return s, nil
}

func (p Params) intVal(key string) (int, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", ErrBadParams, key, raw)
	}
}

// window derives the lookback window from the bound window_seconds
// parameter, defaulting to fallback.
func (p Params) window(fallback time.Duration) (provider.TimeWindow, error) {
	secs, err := p.intVal("window_seconds")
	if err != nil {
		return provider.TimeWindow{}, err
	}
	if secs <= 0 {
		return provider.LastWindow(fallback), nil
	}
	return provider.LastWindow(time.Duration(secs) * time.Second), nil
}

// scope returns the bound scope, defaulting to "production".
func (p Params) scope() (string, error) {
	s, err := p.stringVal("scope")
	if err != nil {
		return "", err
	}
	if s == "" {
		s = "production"
	}
	return s, nil
}

// Primitive is one diagnostic probe. Run returns a non-nil error only for
// programmer errors (ErrBadParams) and provider auth failures; every other
// provider problem becomes a failed fact so one probe cannot sink the plan.
type Primitive interface {
	Name() string
	Capabilities() []Capability
	Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error)
}

var (
	errMissingResource = errors.New("resource reference not bound")
	errMissingTarget   = errors.New("no connectivity target bound and resource has no dependencies")
)

// facts wraps fact literals into the Run return shape.
func facts(f ...models.Fact) []models.Fact {
	return f
}

// okFact builds a complete observation.
func okFact(name string, ref models.ResourceRef, values map[string]any) models.Fact {
	return models.Fact{
		Primitive:  name,
		Resource:   ref,
		Values:     values,
		Status:     models.FactOK,
		ObservedAt: time.Now().UTC(),
	}
}

// partialFact builds an observation that is usable but incomplete.
func partialFact(name string, ref models.ResourceRef, values map[string]any, reason string) models.Fact {
	return models.Fact{
		Primitive:  name,
		Resource:   ref,
		Values:     values,
		Status:     models.FactPartial,
		Error:      reason,
		ObservedAt: time.Now().UTC(),
	}
}

// failOrFatal converts a provider error into a failed fact, letting auth
// failures propagate so the executor can abort the run.
func failOrFatal(name string, ref models.ResourceRef, err error) ([]models.Fact, error) {
	if provider.IsAuthError(err) {
		return nil, err
	}
	return facts(models.FailedFact(name, ref, err)), nil
}
