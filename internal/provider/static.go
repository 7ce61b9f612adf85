package provider

import (
	"context"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

// StaticProvider serves deterministic fixtures so investigations can run
// without platform credentials: local development, demos and tests. Fixture
// maps may be overridden per instance; unset keys fall back to built-in
// synthetic data.
type StaticProvider struct {
	Clock func() time.Time

	Metrics       map[string][]MetricPoint
	Changes       map[string][]ChangeEvent
	Deps          map[string][]Dependency
	Configs       map[string]map[string]string
	Reachability  map[string]ConnectivityResult
	Scaling       map[string]ScalingStatus
	Costs         map[string]CostBreakdown
	TopN          map[string][]Consumer

	// Err, when set, is returned by every call. Wrap an AuthError here to
	// exercise fatal-abort paths.
	Err error
}

// NewStaticProvider returns a provider pre-loaded with a saturated-database
// scenario: CPU stepping from a 45% plateau to 92.3%, a 60% flat baseline
// the day before, and a parameter-group modification ten minutes ago.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{Clock: time.Now}
}

func (s *StaticProvider) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *StaticProvider) MetricSeries(ctx context.Context, ref models.ResourceRef, metric string, window TimeWindow) ([]MetricPoint, error) {
	if err := s.callErr(ctx); err != nil {
		return nil, err
	}
	if points, ok := s.Metrics[ref.String()+"/"+metric]; ok {
		return points, nil
	}
	// Windows that ended more than two hours ago are baseline reads: serve
	// the flat plateau instead of the incident step.
	if s.now().Sub(window.End) > 2*time.Hour {
		return flatSeries(window, 60.0), nil
	}
	return steppedSeries(window, 45.0, 92.3), nil
}

func (s *StaticProvider) RecentChanges(ctx context.Context, ref models.ResourceRef, window TimeWindow) ([]ChangeEvent, error) {
	if err := s.callErr(ctx); err != nil {
		return nil, err
	}
	if events, ok := s.Changes[ref.String()]; ok {
		return events, nil
	}
	return []ChangeEvent{
		{
			EventName:  "ModifyDBInstance",
			Actor:      "deploy-bot",
			OccurredAt: s.now().Add(-10 * time.Minute),
			Before:     map[string]string{"parameter_group": "default.postgres15"},
			After:      map[string]string{"parameter_group": "custom-tuned-v2"},
		},
	}, nil
}

func (s *StaticProvider) Dependencies(ctx context.Context, ref models.ResourceRef) ([]Dependency, error) {
	if err := s.callErr(ctx); err != nil {
		return nil, err
	}
	if deps, ok := s.Deps[ref.String()]; ok {
		return deps, nil
	}
	return []Dependency{
		{Resource: models.ResourceRef{Type: "rds", ID: "orders-db"}, Role: "database", Healthy: true},
		{Resource: models.ResourceRef{Type: "elasticache", ID: "orders-cache"}, Role: "cache", Healthy: true},
	}, nil
}

func (s *StaticProvider) Configuration(ctx context.Context, ref models.ResourceRef) (map[string]string, error) {
	if err := s.callErr(ctx); err != nil {
		return nil, err
	}
	if cfg, ok := s.Configs[ref.String()]; ok {
		return cfg, nil
	}
	return map[string]string{
		"instance_class":  "db.r6g.large",
		"parameter_group": "custom-tuned-v2",
		"engine_version":  "15.4",
		"multi_az":        "true",
	}, nil
}

func (s *StaticProvider) Connectivity(ctx context.Context, from, to models.ResourceRef) (ConnectivityResult, error) {
	if err := s.callErr(ctx); err != nil {
		return ConnectivityResult{}, err
	}
	if res, ok := s.Reachability[from.String()+"->"+to.String()]; ok {
		return res, nil
	}
	return ConnectivityResult{Reachable: true, LatencyMS: 2.4}, nil
}

func (s *StaticProvider) ScalingStatus(ctx context.Context, ref models.ResourceRef) (ScalingStatus, error) {
	if err := s.callErr(ctx); err != nil {
		return ScalingStatus{}, err
	}
	if status, ok := s.Scaling[ref.String()]; ok {
		return status, nil
	}
	last := s.now().Add(-3 * time.Hour)
	return ScalingStatus{
		Enabled:         true,
		MinCapacity:     1,
		MaxCapacity:     4,
		CurrentCapacity: 2,
		LastScaleTime:   &last,
		Activities:      []string{"scale-out 1->2 after cpu alarm"},
	}, nil
}

func (s *StaticProvider) CostSeries(ctx context.Context, scope string, window TimeWindow) (CostBreakdown, error) {
	if err := s.callErr(ctx); err != nil {
		return CostBreakdown{}, err
	}
	if cost, ok := s.Costs[scope]; ok {
		return cost, nil
	}
	return CostBreakdown{
		Total:    1250.45,
		Currency: "USD",
		ByService: map[string]float64{
			"EC2":   650.20,
			"RDS":   300.15,
			"S3":    200.10,
			"Other": 100.00,
		},
		Points: flatSeries(window, 178.64),
	}, nil
}

func (s *StaticProvider) TopConsumers(ctx context.Context, scope, metric string, window TimeWindow, limit int) ([]Consumer, error) {
	if err := s.callErr(ctx); err != nil {
		return nil, err
	}
	consumers, ok := s.TopN[scope+"/"+metric]
	if !ok {
		consumers = []Consumer{
			{Resource: models.ResourceRef{Type: "rds", ID: "orders-db"}, Value: 92.3, Unit: "percent"},
			{Resource: models.ResourceRef{Type: "ec2", ID: "i-0abc123"}, Value: 71.8, Unit: "percent"},
			{Resource: models.ResourceRef{Type: "lambda", ID: "order-events"}, Value: 38.2, Unit: "percent"},
		}
	}
	if limit > 0 && limit < len(consumers) {
		consumers = consumers[:limit]
	}
	return consumers, nil
}

func (s *StaticProvider) callErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Err
}

// flatSeries fills the window with twelve evenly spaced samples of value.
func flatSeries(window TimeWindow, value float64) []MetricPoint {
	return seriesOf(window, func(i int) float64 { return value })
}

// steppedSeries fills the window with a plateau that jumps to peak over the
// last third, mimicking an onset of saturation.
func steppedSeries(window TimeWindow, plateau, peak float64) []MetricPoint {
	return seriesOf(window, func(i int) float64 {
		if i >= 8 {
			return peak
		}
		return plateau
	})
}

func seriesOf(window TimeWindow, value func(i int) float64) []MetricPoint {
	const samples = 12
	span := window.Duration()
	if span <= 0 {
		span = time.Hour
	}
	step := span / samples
	points := make([]MetricPoint, 0, samples)
	for i := 0; i < samples; i++ {
		points = append(points, MetricPoint{
			Timestamp: window.Start.Add(time.Duration(i) * step),
			Value:     value(i),
		})
	}
	return points
}
