// Package provider defines the capability-scoped, read-only resource
// access interface that diagnostic primitives probe through. Implementations
// exist per platform; the engine never branches on provider identity.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

// TimeWindow bounds a lookback query.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastWindow returns the window ending now and spanning d.
func LastWindow(d time.Duration) TimeWindow {
	now := time.Now().UTC()
	return TimeWindow{Start: now.Add(-d), End: now}
}

// Duration returns the window span.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// MetricPoint is one sample in a metric series.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ChangeEvent records one modification or deployment touching a resource.
// Before/After carry the changed configuration values when the platform
// reports them.
type ChangeEvent struct {
	EventName  string            `json:"event_name"`
	Actor      string            `json:"actor,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Before     map[string]string `json:"before,omitempty"`
	After      map[string]string `json:"after,omitempty"`
}

// Dependency is one edge in a resource's dependency set.
type Dependency struct {
	Resource models.ResourceRef `json:"resource"`
	Role     string             `json:"role,omitempty"`
	Healthy  bool               `json:"healthy"`
}

// ConnectivityResult reports reachability between two resources.
type ConnectivityResult struct {
	Reachable bool    `json:"reachable"`
	LatencyMS float64 `json:"latency_ms"`
	Detail    string  `json:"detail,omitempty"`
}

// ScalingStatus describes a resource's scaling posture.
type ScalingStatus struct {
	Enabled         bool       `json:"enabled"`
	MinCapacity     int        `json:"min_capacity"`
	MaxCapacity     int        `json:"max_capacity"`
	CurrentCapacity int        `json:"current_capacity"`
	LastScaleTime   *time.Time `json:"last_scale_time,omitempty"`
	Activities      []string   `json:"activities,omitempty"`
}

// CostBreakdown is spend over a window, optionally split by service.
type CostBreakdown struct {
	Total     float64            `json:"total"`
	Currency  string             `json:"currency"`
	ByService map[string]float64 `json:"by_service,omitempty"`
	Points    []MetricPoint      `json:"points,omitempty"`
}

// Consumer is one entry in a top-consumers ranking.
type Consumer struct {
	Resource models.ResourceRef `json:"resource"`
	Value    float64            `json:"value"`
	Unit     string             `json:"unit,omitempty"`
}

// ResourceProvider exposes the read capabilities primitives rely on. All
// methods are strictly read-only on the target platform.
type ResourceProvider interface {
	MetricSeries(ctx context.Context, ref models.ResourceRef, metric string, window TimeWindow) ([]MetricPoint, error)
	RecentChanges(ctx context.Context, ref models.ResourceRef, window TimeWindow) ([]ChangeEvent, error)
	Dependencies(ctx context.Context, ref models.ResourceRef) ([]Dependency, error)
	Configuration(ctx context.Context, ref models.ResourceRef) (map[string]string, error)
	Connectivity(ctx context.Context, from, to models.ResourceRef) (ConnectivityResult, error)
	ScalingStatus(ctx context.Context, ref models.ResourceRef) (ScalingStatus, error)
	CostSeries(ctx context.Context, scope string, window TimeWindow) (CostBreakdown, error)
	TopConsumers(ctx context.Context, scope, metric string, window TimeWindow, limit int) ([]Consumer, error)
}

// AuthError marks a provider-global authentication or authorization
// failure. Once seen, no further call against the provider can succeed, so
// the executor aborts the whole run instead of degrading.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: authentication failed", e.Provider)
	}
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err carries an AuthError anywhere in its
// chain.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
