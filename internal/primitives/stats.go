package primitives

import (
	"math"
	"sort"

	"github.com/faultlinehq/faultline-engine/internal/provider"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, center float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-center, 2)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func percentileOf(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	index := int((p / 100.0) * float64(len(sorted)-1))
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// seriesValues strips timestamps for the numeric helpers.
func seriesValues(points []provider.MetricPoint) []float64 {
	values := make([]float64, 0, len(points))
	for _, pt := range points {
		values = append(values, pt.Value)
	}
	return values
}

// seriesStats summarises a metric series. Latest is the final sample.
func seriesStats(points []provider.MetricPoint) (min, avg, max, latest float64) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}
	min = points[0].Value
	max = points[0].Value
	sum := 0.0
	for _, pt := range points {
		if pt.Value < min {
			min = pt.Value
		}
		if pt.Value > max {
			max = pt.Value
		}
		sum += pt.Value
	}
	return min, sum / float64(len(points)), max, points[len(points)-1].Value
}

// classifyTrend compares the first-half average against the second-half
// average. A swing beyond ten percent either way is a trend; fewer than two
// samples cannot be classified.
func classifyTrend(points []provider.MetricPoint) string {
	if len(points) < 2 {
		return "unknown"
	}
	half := len(points) / 2
	first := mean(seriesValues(points[:half]))
	second := mean(seriesValues(points[half:]))
	if first == 0 {
		if second > 0 {
			return "increasing"
		}
		return "stable"
	}
	diffPct := (second - first) / first * 100
	switch {
	case diffPct > 10:
		return "increasing"
	case diffPct < -10:
		return "decreasing"
	default:
		return "stable"
	}
}

// spikeScore measures how far the series tail sits above its own mean, in
// standard deviations. Flat series score zero.
func spikeScore(points []provider.MetricPoint) float64 {
	values := seriesValues(points)
	if len(values) < 2 {
		return 0
	}
	center := mean(values)
	spread := stdDev(values, center)
	if spread == 0 {
		return 0
	}
	return (values[len(values)-1] - center) / spread
}
