package primitives

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// utilizationProbe reads the resource's primary utilization series and
// summarises level and trend.
type utilizationProbe struct{}

func (utilizationProbe) Name() string { return "analyze_utilization" }

func (utilizationProbe) Capabilities() []Capability {
	return []Capability{CapMetricSeries}
}

func (u utilizationProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(u.Name(), ref, errMissingResource)), nil
	}
	metric, err := params.stringVal("metric")
	if err != nil {
		return nil, err
	}
	if metric == "" {
		metric = "cpu"
	}
	window, err := params.window(time.Hour)
	if err != nil {
		return nil, err
	}

	binding := resolveMetric(ref.Type, metric)
	points, err := rp.MetricSeries(ctx, ref, binding.Metric, window)
	if err != nil {
		return failOrFatal(u.Name(), ref, err)
	}

	min, avg, max, latest := seriesStats(points)
	values := map[string]any{
		"namespace":      binding.Namespace,
		"metric":         binding.Metric,
		"min":            min,
		"avg":            avg,
		"max":            max,
		"p95":            percentileOf(seriesValues(points), 95),
		"latest":         latest,
		"datapoints":     len(points),
		"trend":          classifyTrend(points),
		"window_seconds": int(window.Duration().Seconds()),
	}
	if len(points) < 2 {
		return facts(partialFact(u.Name(), ref, values, "too few datapoints for trend analysis")), nil
	}
	return facts(okFact(u.Name(), ref, values)), nil
}

// baselineProbe compares the current window against the same window one day
// earlier.
type baselineProbe struct{}

func (baselineProbe) Name() string { return "compare_baseline" }

func (baselineProbe) Capabilities() []Capability {
	return []Capability{CapMetricSeries}
}

func (b baselineProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(b.Name(), ref, errMissingResource)), nil
	}
	metric, err := params.stringVal("metric")
	if err != nil {
		return nil, err
	}
	if metric == "" {
		metric = "cpu"
	}
	window, err := params.window(time.Hour)
	if err != nil {
		return nil, err
	}

	binding := resolveMetric(ref.Type, metric)
	current, err := rp.MetricSeries(ctx, ref, binding.Metric, window)
	if err != nil {
		return failOrFatal(b.Name(), ref, err)
	}
	_, currentAvg, _, _ := seriesStats(current)

	baselineWindow := provider.TimeWindow{
		Start: window.Start.Add(-24 * time.Hour),
		End:   window.End.Add(-24 * time.Hour),
	}
	values := map[string]any{
		"metric":            binding.Metric,
		"current_avg":       currentAvg,
		"comparison_period": "same_time_yesterday",
	}

	baseline, err := rp.MetricSeries(ctx, ref, binding.Metric, baselineWindow)
	if err != nil {
		if provider.IsAuthError(err) {
			return nil, err
		}
		return facts(partialFact(b.Name(), ref, values, fmt.Sprintf("baseline read failed: %v", err))), nil
	}
	_, baselineAvg, _, _ := seriesStats(baseline)

	deviation := 0.0
	if baselineAvg != 0 {
		deviation = (currentAvg - baselineAvg) / baselineAvg * 100
	}
	values["baseline_avg"] = baselineAvg
	values["deviation_percent"] = deviation
	values["is_anomaly"] = math.Abs(deviation) > 50

	return facts(okFact(b.Name(), ref, values)), nil
}

// errorRateProbe reads the resource's error series and flags spikes.
type errorRateProbe struct{}

func (errorRateProbe) Name() string { return "analyze_error_rate" }

func (errorRateProbe) Capabilities() []Capability {
	return []Capability{CapMetricSeries}
}

func (e errorRateProbe) Run(ctx context.Context, ref models.ResourceRef, params Params, rp provider.ResourceProvider) ([]models.Fact, error) {
	if ref.IsZero() {
		return facts(models.FailedFact(e.Name(), ref, errMissingResource)), nil
	}
	window, err := params.window(time.Hour)
	if err != nil {
		return nil, err
	}

	binding := resolveMetric(ref.Type, "errors")
	points, err := rp.MetricSeries(ctx, ref, binding.Metric, window)
	if err != nil {
		return failOrFatal(e.Name(), ref, err)
	}

	total := 0.0
	for _, pt := range points {
		total += pt.Value
	}
	_, avg, _, latest := seriesStats(points)
	score := spikeScore(points)

	values := map[string]any{
		"metric":       binding.Metric,
		"total_errors": total,
		"avg_rate":     avg,
		"latest":       latest,
		"trend":        classifyTrend(points),
		"spike_score":  score,
		"error_spike":  score >= 2.0,
	}
	if len(points) < 2 {
		return facts(partialFact(e.Name(), ref, values, "too few datapoints for spike detection")), nil
	}
	return facts(okFact(e.Name(), ref, values)), nil
}
