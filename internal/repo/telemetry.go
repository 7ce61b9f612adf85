// Package repo contains clients for the external telemetry backends the
// engine probes through.
package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/cache"
	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/provider"
)

// TelemetryConfig holds connection settings for the telemetry API.
type TelemetryConfig struct {
	Endpoint     string
	ServiceToken string
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// TelemetryClient implements provider.ResourceProvider over the telemetry
// HTTP API (mock-cloud in local development). Metric reads for windows that
// have already closed are cached: baseline comparisons re-read yesterday's
// series on every investigation and that data never changes.
type TelemetryClient struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	cache        cache.Provider
	cacheTTL     time.Duration
	logger       *slog.Logger
}

// NewTelemetryClient constructs a client for the configured endpoint. A nil
// cacheProvider disables baseline caching.
func NewTelemetryClient(cfg TelemetryConfig, cacheProvider cache.Provider, logger *slog.Logger) *TelemetryClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TelemetryClient{
		baseURL:      strings.TrimRight(cfg.Endpoint, "/"),
		serviceToken: cfg.ServiceToken,
		httpClient:   &http.Client{Timeout: timeout},
		cache:        cacheProvider,
		cacheTTL:     ttl,
		logger:       logger,
	}
}

// MetricSeries fetches metric samples for a resource over the window.
func (c *TelemetryClient) MetricSeries(ctx context.Context, ref models.ResourceRef, metric string, window provider.TimeWindow) ([]provider.MetricPoint, error) {
	cacheKey := ""
	if c.closedWindow(window) {
		cacheKey = fmt.Sprintf("metrics:%s:%s:%d-%d", ref, metric, window.Start.Unix(), window.End.Unix())
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			var points []provider.MetricPoint
			if err := json.Unmarshal(cached, &points); err == nil && len(points) > 0 {
				return points, nil
			}
		}
	}

	payload := map[string]any{
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
		"metric":        metric,
		"start":         window.Start.Format(time.RFC3339),
		"end":           window.End.Format(time.RFC3339),
	}
	var response struct {
		Series []provider.MetricPoint `json:"series"`
	}
	if err := c.postJSON(ctx, "/api/v1/metrics/query", payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry metrics request failed: %w", err)
	}
	if len(response.Series) == 0 {
		return nil, fmt.Errorf("telemetry metrics returned no samples")
	}

	if cacheKey != "" {
		if encoded, err := json.Marshal(response.Series); err == nil {
			if err := c.cache.Set(ctx, cacheKey, encoded, c.cacheTTL); err != nil && c.logger != nil {
				c.logger.Warn("baseline cache write failed", slog.Any("error", err))
			}
		}
	}
	return response.Series, nil
}

// RecentChanges fetches modification and deployment events for a resource.
func (c *TelemetryClient) RecentChanges(ctx context.Context, ref models.ResourceRef, window provider.TimeWindow) ([]provider.ChangeEvent, error) {
	payload := map[string]any{
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
		"start":         window.Start.Format(time.RFC3339),
		"end":           window.End.Format(time.RFC3339),
	}
	var response struct {
		Events []provider.ChangeEvent `json:"events"`
	}
	if err := c.postJSON(ctx, "/api/v1/changes/query", payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry changes request failed: %w", err)
	}
	return response.Events, nil
}

// Dependencies fetches the resource's dependency edges with health state.
func (c *TelemetryClient) Dependencies(ctx context.Context, ref models.ResourceRef) ([]provider.Dependency, error) {
	payload := map[string]any{
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
	}
	var response struct {
		Dependencies []provider.Dependency `json:"dependencies"`
	}
	if err := c.postJSON(ctx, "/api/v1/dependencies", payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry dependencies request failed: %w", err)
	}
	return response.Dependencies, nil
}

// Configuration fetches the resource's current configuration map.
func (c *TelemetryClient) Configuration(ctx context.Context, ref models.ResourceRef) (map[string]string, error) {
	payload := map[string]any{
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
	}
	var response struct {
		Configuration map[string]string `json:"configuration"`
	}
	if err := c.postJSON(ctx, "/api/v1/configuration", payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry configuration request failed: %w", err)
	}
	if len(response.Configuration) == 0 {
		return nil, fmt.Errorf("telemetry configuration returned no keys")
	}
	return response.Configuration, nil
}

// Connectivity checks reachability between two resources.
func (c *TelemetryClient) Connectivity(ctx context.Context, from, to models.ResourceRef) (provider.ConnectivityResult, error) {
	payload := map[string]any{
		"from_type": from.Type,
		"from_id":   from.ID,
		"to_type":   to.Type,
		"to_id":     to.ID,
	}
	var response provider.ConnectivityResult
	if err := c.postJSON(ctx, "/api/v1/connectivity", payload, &response); err != nil {
		return provider.ConnectivityResult{}, fmt.Errorf("telemetry connectivity request failed: %w", err)
	}
	return response, nil
}

// ScalingStatus fetches the resource's scaling posture.
func (c *TelemetryClient) ScalingStatus(ctx context.Context, ref models.ResourceRef) (provider.ScalingStatus, error) {
	payload := map[string]any{
		"resource_type": ref.Type,
		"resource_id":   ref.ID,
	}
	var response provider.ScalingStatus
	if err := c.postJSON(ctx, "/api/v1/scaling", payload, &response); err != nil {
		return provider.ScalingStatus{}, fmt.Errorf("telemetry scaling request failed: %w", err)
	}
	return response, nil
}

// CostSeries fetches spend for a scope over the window.
func (c *TelemetryClient) CostSeries(ctx context.Context, scope string, window provider.TimeWindow) (provider.CostBreakdown, error) {
	payload := map[string]any{
		"scope": scope,
		"start": window.Start.Format(time.RFC3339),
		"end":   window.End.Format(time.RFC3339),
	}
	var response provider.CostBreakdown
	if err := c.postJSON(ctx, "/api/v1/costs", payload, &response); err != nil {
		return provider.CostBreakdown{}, fmt.Errorf("telemetry costs request failed: %w", err)
	}
	return response, nil
}

// TopConsumers fetches the heaviest consumers of a metric within a scope.
func (c *TelemetryClient) TopConsumers(ctx context.Context, scope, metric string, window provider.TimeWindow, limit int) ([]provider.Consumer, error) {
	payload := map[string]any{
		"scope":  scope,
		"metric": metric,
		"start":  window.Start.Format(time.RFC3339),
		"end":    window.End.Format(time.RFC3339),
		"limit":  limit,
	}
	var response struct {
		Consumers []provider.Consumer `json:"consumers"`
	}
	if err := c.postJSON(ctx, "/api/v1/consumers", payload, &response); err != nil {
		return nil, fmt.Errorf("telemetry consumers request failed: %w", err)
	}
	return response.Consumers, nil
}

// closedWindow reports whether the window ended long enough ago that its
// data is immutable and safe to cache.
func (c *TelemetryClient) closedWindow(window provider.TimeWindow) bool {
	return time.Since(window.End) > time.Hour
}

func (c *TelemetryClient) postJSON(ctx context.Context, apiPath string, payload any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("telemetry endpoint not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolvePath(apiPath), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.serviceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.AuthError{Provider: "telemetry", Err: fmt.Errorf("telemetry API returned %s", resp.Status)}
	default:
		return fmt.Errorf("telemetry API returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *TelemetryClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}
