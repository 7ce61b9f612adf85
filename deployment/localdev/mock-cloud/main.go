package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"
)

type metricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type changeEvent struct {
	EventName  string            `json:"event_name"`
	Actor      string            `json:"actor,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Before     map[string]string `json:"before,omitempty"`
	After      map[string]string `json:"after,omitempty"`
}

type resourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type dependency struct {
	Resource resourceRef `json:"resource"`
	Role     string      `json:"role,omitempty"`
	Healthy  bool        `json:"healthy"`
}

type consumer struct {
	Resource resourceRef `json:"resource"`
	Value    float64     `json:"value"`
	Unit     string      `json:"unit,omitempty"`
}

type timeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/metrics/query", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req timeRange
		_ = json.NewDecoder(r.Body).Decode(&req)
		// Windows that closed more than two hours ago are baseline reads:
		// serve the flat plateau instead of the incident step.
		if time.Since(req.End) > 2*time.Hour {
			writeJSON(w, map[string]any{"series": flatSeries(req.Start, req.End, 60.0)})
			return
		}
		writeJSON(w, map[string]any{"series": steppedSeries(req.Start, req.End, 45.0, 92.3)})
	})

	mux.HandleFunc("/api/v1/changes/query", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"events": []changeEvent{
				{
					EventName:  "ModifyDBInstance",
					Actor:      "deploy-bot",
					OccurredAt: time.Now().Add(-10 * time.Minute),
					Before:     map[string]string{"parameter_group": "default.postgres15"},
					After:      map[string]string{"parameter_group": "custom-tuned-v2"},
				},
			},
		})
	})

	mux.HandleFunc("/api/v1/dependencies", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"dependencies": []dependency{
				{Resource: resourceRef{Type: "rds", ID: "orders-db"}, Role: "database", Healthy: true},
				{Resource: resourceRef{Type: "elasticache", ID: "orders-cache"}, Role: "cache", Healthy: true},
			},
		})
	})

	mux.HandleFunc("/api/v1/configuration", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"configuration": map[string]string{
				"instance_class":  "db.r6g.large",
				"parameter_group": "custom-tuned-v2",
				"engine_version":  "15.4",
				"multi_az":        "true",
			},
		})
	})

	mux.HandleFunc("/api/v1/connectivity", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"reachable":  true,
			"latency_ms": 2.4,
		})
	})

	mux.HandleFunc("/api/v1/scaling", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"enabled":          true,
			"min_capacity":     1,
			"max_capacity":     4,
			"current_capacity": 2,
			"last_scale_time":  time.Now().Add(-3 * time.Hour),
			"activities":       []string{"scale-out 1->2 after cpu alarm"},
		})
	})

	mux.HandleFunc("/api/v1/costs", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req timeRange
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, map[string]any{
			"total":    1250.45,
			"currency": "USD",
			"by_service": map[string]float64{
				"EC2":   650.20,
				"RDS":   300.15,
				"S3":    200.10,
				"Other": 100.00,
			},
			"points": flatSeries(req.Start, req.End, 178.64),
		})
	})

	mux.HandleFunc("/api/v1/consumers", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req struct {
			Limit int `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		consumers := []consumer{
			{Resource: resourceRef{Type: "rds", ID: "orders-db"}, Value: 92.3, Unit: "percent"},
			{Resource: resourceRef{Type: "ec2", ID: "i-0abc123"}, Value: 71.8, Unit: "percent"},
			{Resource: resourceRef{Type: "lambda", ID: "order-events"}, Value: 38.2, Unit: "percent"},
		}
		if req.Limit > 0 && req.Limit < len(consumers) {
			consumers = consumers[:req.Limit]
		}
		writeJSON(w, map[string]any{"consumers": consumers})
	})

	handler := http.Handler(mux)
	// With MOCK_CLOUD_TOKEN set, unauthenticated requests get 401 so the
	// engine's fatal-abort path can be exercised locally.
	if token := os.Getenv("MOCK_CLOUD_TOKEN"); token != "" {
		handler = requireToken(token, handler)
	}

	logger := log.New(log.Writer(), "mock-cloud ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":7070",
		Handler: logRequests(logger, handler),
	}

	logger.Println("listening on :7070")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func flatSeries(start, end time.Time, value float64) []metricPoint {
	return seriesOf(start, end, func(int) float64 { return value })
}

// steppedSeries fills the window with a plateau that jumps to peak over the
// last third, mimicking an onset of saturation.
func steppedSeries(start, end time.Time, plateau, peak float64) []metricPoint {
	return seriesOf(start, end, func(i int) float64 {
		if i >= 8 {
			return peak
		}
		return plateau
	})
}

func seriesOf(start, end time.Time, value func(int) float64) []metricPoint {
	const samples = 12
	span := end.Sub(start)
	if span <= 0 {
		span = time.Hour
		start = time.Now().Add(-span)
	}
	step := span / samples
	points := make([]metricPoint, 0, samples)
	for i := 0; i < samples; i++ {
		points = append(points, metricPoint{Timestamp: start.Add(time.Duration(i) * step), Value: value(i)})
	}
	return points
}
