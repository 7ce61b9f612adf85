package primitives

import (
	"context"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// consumersProbe ranks the heaviest consumers of a metric inside a scope.
// It is scope-driven rather than resource-driven: cost and saturation
// hunts start from an account or environment, not a single instance.
type consumersProbe struct{}

func (consumersProbe) Name() string { return "find_top_consumers" }

func (consumersProbe) Capabilities() []Capability {
	return []Capability{CapTopConsumers}
}

func (t consumersProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	scope, err := params.scope()
	if err != nil {
		return nil, err
	}
	metric, err := params.stringVal("metric")
	if err != nil {
		return nil, err
	}
	if metric == "" {
		metric = "cpu"
	}
	limit, err := params.intVal("limit")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	win, err := params.window(time.Hour)
	if err != nil {
		return nil, err
	}

	consumers, err := rp.TopConsumers(ctx, scope, metric, win, limit)
	if err != nil {
		return failOrFatal(t.Name(), ref, err)
	}

	ranked := make([]map[string]any, 0, len(consumers))
	for _, c := range consumers {
		ranked = append(ranked, map[string]any{
			"resource": c.Resource.String(),
			"value":    c.Value,
			"unit":     c.Unit,
		})
	}

	values := map[string]any{
		"scope":     scope,
		"metric":    metric,
		"count":     len(ranked),
		"consumers": ranked,
	}
	if len(ranked) == 0 {
		return facts(partialFact(t.Name(), ref, values, "no consumers reported for scope")), nil
	}
	return facts(okFact(t.Name(), ref, values)), nil
}

// costTrendProbe reads the spend series for a scope and summarizes where
// the money goes and which way the curve is bending.
type costTrendProbe struct{}

func (costTrendProbe) Name() string { return "analyze_cost_trend" }

func (costTrendProbe) Capabilities() []Capability {
	return []Capability{CapCostSeries}
}

func (c costTrendProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	scope, err := params.scope()
	if err != nil {
		return nil, err
	}
	win, err := params.window(7 * 24 * time.Hour)
	if err != nil {
		return nil, err
	}

	breakdown, err := rp.CostSeries(ctx, scope, win)
	if err != nil {
		return failOrFatal(c.Name(), ref, err)
	}

	topService, topCost := "", 0.0
	for svc, amount := range breakdown.ByService {
		if amount > topCost {
			topService, topCost = svc, amount
		}
	}

	values := map[string]any{
		"scope":            scope,
		"total":            breakdown.Total,
		"currency":         breakdown.Currency,
		"by_service":       breakdown.ByService,
		"trend":            classifyTrend(breakdown.Points),
		"top_service":      topService,
		"top_service_cost": topCost,
		"window_seconds":   int(win.Duration().Seconds()),
	}
	if len(breakdown.ByService) == 0 {
		return facts(partialFact(c.Name(), ref, values, "no per-service breakdown available")), nil
	}
	return facts(okFact(c.Name(), ref, values)), nil
}
