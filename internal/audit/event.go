package audit

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// EventType names a point in the investigation lifecycle.
type EventType string

const (
	EventReceived    EventType = "investigation.received"
	EventClassified  EventType = "investigation.classified"
	EventPlanned     EventType = "investigation.planned"
	EventExecuted    EventType = "investigation.executed"
	EventInterpreted EventType = "investigation.interpreted"
	EventFailed      EventType = "investigation.failed"
)

// Event is one audit trail entry. Entries are written as single JSON lines
// and read back by ReadSince, so every field carries a json tag.
type Event struct {
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
	Type          EventType      `json:"event_type"`
	Result        string         `json:"result,omitempty"`
	Resource      string         `json:"resource,omitempty"`
	ResourceType  string         `json:"resource_type,omitempty"`
	Error         string         `json:"error,omitempty"`
	DurationMs    int64          `json:"duration_ms,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewEvent starts an event of the given type stamped with the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// WithCorrelationID ties the event to one investigation.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithResult records the outcome label (execution status, ok, error).
func (e *Event) WithResult(result string) *Event {
	e.Result = result
	return e
}

// WithResource records the resource under investigation.
func (e *Event) WithResource(resource, resourceType string) *Event {
	e.Resource = resource
	e.ResourceType = resourceType
	return e
}

// WithError captures the failure and marks the result as error.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = "error"
	}
	return e
}

// WithDuration records elapsed wall time in milliseconds.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMs = d.Milliseconds()
	return e
}

// WithMetadata attaches one key to the free-form metadata object.
func (e *Event) WithMetadata(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// MarshalLogObject writes the event fields at the top level of the encoded
// line, mirroring the json tags so ReadSince can parse entries back.
func (e *Event) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddTime("timestamp", e.Timestamp)
	enc.AddString("correlation_id", e.CorrelationID)
	enc.AddString("event_type", string(e.Type))
	if e.Result != "" {
		enc.AddString("result", e.Result)
	}
	if e.Resource != "" {
		enc.AddString("resource", e.Resource)
	}
	if e.ResourceType != "" {
		enc.AddString("resource_type", e.ResourceType)
	}
	if e.Error != "" {
		enc.AddString("error", e.Error)
	}
	if e.DurationMs != 0 {
		enc.AddInt64("duration_ms", e.DurationMs)
	}
	if len(e.Metadata) > 0 {
		if err := enc.AddReflected("metadata", e.Metadata); err != nil {
			return err
		}
	}
	return nil
}
