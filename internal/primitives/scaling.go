package primitives

import (
	"context"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// scalingProbe reports what the autoscaler has been doing with the
// resource lately.
type scalingProbe struct{}

func (scalingProbe) Name() string { return "check_scaling_behavior" }

func (scalingProbe) Capabilities() []Capability {
	return []Capability{CapScalingStatus}
}

func (s scalingProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(s.Name(), ref, errMissingResource)), nil
	}

	status, err := rp.ScalingStatus(ctx, ref)
	if err != nil {
		return failOrFatal(s.Name(), ref, err)
	}

	values := map[string]any{
		"scaling_enabled":     status.Enabled,
		"min_capacity":        status.MinCapacity,
		"max_capacity":        status.MaxCapacity,
		"current_capacity":    status.CurrentCapacity,
		"at_max_capacity":     status.Enabled && status.CurrentCapacity >= status.MaxCapacity,
		"recent_scale_events": len(status.Activities),
		"activities":          lastStrings(status.Activities, 5),
	}
	if status.LastScaleTime != nil {
		values["last_scale_time"] = status.LastScaleTime.UTC().Format(time.RFC3339)
		values["minutes_since_last_scale"] = int(time.Since(*status.LastScaleTime).Minutes())
	}
	return facts(okFact(s.Name(), ref, values)), nil
}

// scalingLimitsProbe measures how much scaling headroom is left before the
// configured ceiling.
type scalingLimitsProbe struct{}

func (scalingLimitsProbe) Name() string { return "check_scaling_limits" }

func (scalingLimitsProbe) Capabilities() []Capability {
	return []Capability{CapScalingStatus}
}

func (s scalingLimitsProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(s.Name(), ref, errMissingResource)), nil
	}

	status, err := rp.ScalingStatus(ctx, ref)
	if err != nil {
		return failOrFatal(s.Name(), ref, err)
	}

	if !status.Enabled {
		return facts(okFact(s.Name(), ref, map[string]any{
			"scaling_enabled": false,
			"limit_reached":   false,
		})), nil
	}

	headroom := status.MaxCapacity - status.CurrentCapacity
	values := map[string]any{
		"scaling_enabled":  true,
		"min_capacity":     status.MinCapacity,
		"max_capacity":     status.MaxCapacity,
		"current_capacity": status.CurrentCapacity,
		"headroom":         headroom,
		"limit_reached":    headroom <= 0,
	}
	if span := status.MaxCapacity - status.MinCapacity; span > 0 {
		values["range_utilization"] = float64(status.CurrentCapacity-status.MinCapacity) / float64(span)
	}
	return facts(okFact(s.Name(), ref, values)), nil
}

func lastStrings(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
