// Package api exposes the diagnosis engine over HTTP JSON plus a WebSocket
// progress stream.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/audit"
	"github.com/faultlinehq/faultline-engine/internal/models"
	"github.com/faultlinehq/faultline-engine/internal/primitives"
	"github.com/faultlinehq/faultline-engine/internal/provider"
	"github.com/faultlinehq/faultline-engine/internal/services"
)

// Handler owns the REST and WebSocket routes.
type Handler struct {
	service  *services.DiagnosisService
	registry *primitives.Registry
	trail    *audit.Sink
	logger   *slog.Logger
}

// NewHandler constructs the route handler. A nil trail disables the audit
// endpoint.
func NewHandler(service *services.DiagnosisService, registry *primitives.Registry, trail *audit.Sink, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = primitives.NewRegistry()
	}
	return &Handler{
		service:  service,
		registry: registry,
		trail:    trail,
		logger:   logger,
	}
}

// Routes returns the full route table behind the request logger.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/api/v1/diagnose", h.handleDiagnose)
	mux.HandleFunc("/api/v1/diagnose/stream", h.handleDiagnoseStream)
	mux.HandleFunc("/api/v1/classify", h.handleClassify)
	mux.HandleFunc("/api/v1/primitives", h.handlePrimitives)
	mux.HandleFunc("/api/v1/audit", h.handleAudit)
	return h.logRequests(mux)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	if !h.enforceMethod(w, r, http.MethodPost) {
		return
	}

	var req models.DiagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	report, err := h.service.Investigate(r.Context(), req)
	if err != nil {
		h.writeInvestigationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleClassify(w http.ResponseWriter, r *http.Request) {
	if !h.enforceMethod(w, r, http.MethodPost) {
		return
	}

	var req models.DiagnoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	classification, err := h.service.Classify(r.Context(), req)
	if err != nil {
		h.writeInvestigationError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, classification)
}

func (h *Handler) handlePrimitives(w http.ResponseWriter, r *http.Request) {
	if !h.enforceMethod(w, r, http.MethodGet) {
		return
	}

	entries := h.registry.Catalog()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"primitives": entries,
		"count":      len(entries),
	})
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !h.enforceMethod(w, r, http.MethodGet) {
		return
	}
	if h.trail == nil {
		h.writeError(w, http.StatusNotFound, "audit trail disabled")
		return
	}

	events, err := h.trail.ReadSince(r.URL.Query().Get("since"))
	if err != nil {
		h.logger.Error("read audit trail", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "failed to read audit trail")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// writeInvestigationError maps service errors onto HTTP statuses: rejected
// input is the caller's fault, provider auth failures are upstream faults,
// everything else is ours.
func (h *Handler) writeInvestigationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case provider.IsAuthError(err):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)))
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

// Hijack passes through to the underlying writer so the WebSocket upgrade
// works behind the logging middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
