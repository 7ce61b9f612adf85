package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faultlinehq/faultline-engine/internal/engine"
	"github.com/faultlinehq/faultline-engine/internal/models"
)

// Stream frame types, in emission order: one classification, one plan, one
// fact frame per executed step, then the final report.
const (
	frameClassification = "classification"
	framePlan           = "plan"
	frameFact           = "fact"
	frameReport         = "report"
	frameError          = "error"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 30 * time.Second
	wsPingInterval = 15 * time.Second
)

// streamFrame is the envelope for every message on the diagnose stream.
type streamFrame struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Origin enforcement is left to the fronting proxy; the engine binds to
// cluster-internal addresses.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsStream serialises frame writes: milestone callbacks fire from the
// investigation goroutine while the ping loop writes control frames.
type wsStream struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsStream) send(frameType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(streamFrame{
		Type:      frameType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

func (s *wsStream) sendError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = s.conn.WriteJSON(streamFrame{
		Type:      frameError,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	})
}

// handleDiagnoseStream runs one investigation per connection: the client
// sends a single diagnose request, the server streams milestones as they
// happen and closes after the report frame.
func (h *Handler) handleDiagnoseStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	stream := &wsStream{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var req models.DiagnoseRequest
	if err := conn.ReadJSON(&req); err != nil {
		stream.sendError("malformed diagnose request")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A disconnecting client cancels the investigation instead of leaving it
	// running against the provider.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()
	go pingLoop(ctx, conn)

	obs := &engine.Observer{
		OnClassification: func(c models.IncidentClassification) { _ = stream.send(frameClassification, c) },
		OnPlan:           func(plan models.DiagnosticPlan) { _ = stream.send(framePlan, plan) },
		OnStep:           func(result models.StepResult) { _ = stream.send(frameFact, result) },
	}

	report, err := h.service.InvestigateObserved(ctx, req, obs)
	if err != nil {
		stream.sendError(err.Error())
		return
	}
	if err := stream.send(frameReport, report); err != nil {
		h.logger.Debug("stream report write failed", slog.Any("error", err))
		return
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
