package primitives

import (
	"testing"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/provider"
)

func pointsOf(values ...float64) []provider.MetricPoint {
	base := time.Now()
	points := make([]provider.MetricPoint, 0, len(values))
	for i, v := range values {
		points = append(points, provider.MetricPoint{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v})
	}
	return points
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   string
	}{
		{"increasing", []float64{40, 40, 40, 90, 90, 90}, "increasing"},
		{"decreasing", []float64{90, 90, 90, 40, 40, 40}, "decreasing"},
		{"stable", []float64{50, 51, 49, 50, 52, 50}, "stable"},
		{"just inside threshold", []float64{100, 100, 109, 109}, "stable"},
		{"single point", []float64{72}, "unknown"},
		{"empty", nil, "unknown"},
		{"zero first half", []float64{0, 0, 5, 5}, "increasing"},
		{"all zero", []float64{0, 0, 0, 0}, "stable"},
	}

	for _, tt := range tests {
		if got := classifyTrend(pointsOf(tt.values...)); got != tt.want {
			t.Errorf("%s: classifyTrend = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSeriesStats(t *testing.T) {
	min, avg, max, latest := seriesStats(pointsOf(40, 60, 80, 100))
	if min != 40 || max != 100 || latest != 100 {
		t.Fatalf("min/max/latest = %f/%f/%f", min, max, latest)
	}
	if avg != 70 {
		t.Fatalf("avg = %f, want 70", avg)
	}

	min, avg, max, latest = seriesStats(nil)
	if min != 0 || avg != 0 || max != 0 || latest != 0 {
		t.Fatalf("empty series must zero out, got %f/%f/%f/%f", min, avg, max, latest)
	}
}

func TestSpikeScore(t *testing.T) {
	if score := spikeScore(pointsOf(1, 1, 1, 1, 1, 1)); score != 0 {
		t.Fatalf("flat series must score zero, got %f", score)
	}
	if score := spikeScore(pointsOf(1)); score != 0 {
		t.Fatalf("single sample must score zero, got %f", score)
	}
	if score := spikeScore(pointsOf(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 40)); score < 2 {
		t.Fatalf("tail spike must score high, got %f", score)
	}
}

func TestPercentileOf(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if p := percentileOf(values, 95); p != 90 {
		t.Fatalf("p95 = %f, want 90", p)
	}
	if p := percentileOf(values, 0); p != 10 {
		t.Fatalf("p0 = %f, want 10", p)
	}
	if p := percentileOf(nil, 95); p != 0 {
		t.Fatalf("empty input must yield 0, got %f", p)
	}
}

func TestResolveMetric(t *testing.T) {
	tests := []struct {
		resourceType string
		logical      string
		namespace    string
		metric       string
	}{
		{"ec2", "cpu", "AWS/EC2", "CPUUtilization"},
		{"ec2", "memory", "CWAgent", "mem_used_percent"},
		{"rds", "connections", "AWS/RDS", "DatabaseConnections"},
		{"lambda", "throttles", "AWS/Lambda", "Throttles"},
		{"dynamodb", "throttles", "AWS/DynamoDB", "UserErrors"},
		{"s3", "cpu", "AWS/CloudWatch", "cpu"},
		{"rds", "nonexistent", "AWS/CloudWatch", "nonexistent"},
	}

	for _, tt := range tests {
		binding := resolveMetric(tt.resourceType, tt.logical)
		if binding.Namespace != tt.namespace || binding.Metric != tt.metric {
			t.Errorf("resolveMetric(%s, %s) = %s/%s, want %s/%s",
				tt.resourceType, tt.logical, binding.Namespace, binding.Metric, tt.namespace, tt.metric)
		}
	}
}
