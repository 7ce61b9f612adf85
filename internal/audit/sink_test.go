package audit

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := NewSink(Config{Directory: t.TempDir()}, testLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestSinkRoundTrip(t *testing.T) {
	sink := newTestSink(t)

	sink.Record(NewEvent(EventReceived).
		WithCorrelationID("corr-1").
		WithResource("orders-db", "rds"))
	sink.Record(NewEvent(EventExecuted).
		WithCorrelationID("corr-1").
		WithResult("complete").
		WithDuration(1500 * time.Millisecond).
		WithMetadata("plan_id", "plan-ab12cd34").
		WithMetadata("steps", 5))
	sink.Record(NewEvent(EventInterpreted).
		WithCorrelationID("corr-1").
		WithResult("ok"))

	events, err := sink.ReadSince("24h")
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != EventReceived || events[0].Resource != "orders-db" || events[0].ResourceType != "rds" {
		t.Fatalf("first event = %+v", events[0])
	}

	executed := events[1]
	if executed.Type != EventExecuted || executed.CorrelationID != "corr-1" {
		t.Fatalf("executed event = %+v", executed)
	}
	if executed.Result != "complete" || executed.DurationMs != 1500 {
		t.Fatalf("executed result/duration = %q/%d", executed.Result, executed.DurationMs)
	}
	if executed.Metadata["plan_id"] != "plan-ab12cd34" {
		t.Fatalf("metadata plan_id = %v", executed.Metadata["plan_id"])
	}
	// JSON numbers come back as float64.
	if executed.Metadata["steps"] != float64(5) {
		t.Fatalf("metadata steps = %v", executed.Metadata["steps"])
	}
	if executed.Timestamp.IsZero() {
		t.Fatal("timestamp did not round-trip")
	}
}

func TestSinkReadSinceFiltersByWindow(t *testing.T) {
	sink := newTestSink(t)

	old := NewEvent(EventReceived).WithCorrelationID("corr-old")
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	sink.Record(old)
	sink.Record(NewEvent(EventReceived).WithCorrelationID("corr-new"))

	recent, err := sink.ReadSince("24h")
	if err != nil {
		t.Fatalf("read since 24h: %v", err)
	}
	if len(recent) != 1 || recent[0].CorrelationID != "corr-new" {
		t.Fatalf("24h window returned %+v", recent)
	}

	week, err := sink.ReadSince("7d")
	if err != nil {
		t.Fatalf("read since 7d: %v", err)
	}
	if len(week) != 2 {
		t.Fatalf("7d window returned %d events, want 2", len(week))
	}
}

func TestSinkFlushesAtCapacity(t *testing.T) {
	sink := newTestSink(t)

	for i := 0; i < flushAt; i++ {
		sink.Record(NewEvent(EventReceived).WithCorrelationID("corr-bulk"))
	}

	// No explicit Sync: the capacity trigger alone must have written lines.
	data, err := os.ReadFile(sink.Path())
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	if lines := bytes.Count(data, []byte("\n")); lines != flushAt {
		t.Fatalf("got %d lines, want %d", lines, flushAt)
	}
}

func TestSinkReadSinceBeforeFirstWrite(t *testing.T) {
	sink := newTestSink(t)

	events, err := sink.ReadSince("24h")
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("got %d events from empty sink", len(events))
	}
}

func TestSinkSkipsTornLines(t *testing.T) {
	sink := newTestSink(t)

	sink.Record(NewEvent(EventReceived).WithCorrelationID("corr-1"))
	if err := sink.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	f, err := os.OpenFile(sink.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	if _, err := f.WriteString("{\"event_type\": torn\n"); err != nil {
		t.Fatalf("append torn line: %v", err)
	}
	_ = f.Close()

	sink.Record(NewEvent(EventInterpreted).WithCorrelationID("corr-1"))

	events, err := sink.ReadSince("24h")
	if err != nil {
		t.Fatalf("read since: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 around the torn line", len(events))
	}
}

func TestSinkCloseDrainsBuffer(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(Config{Directory: dir}, testLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}

	sink.Record(NewEvent(EventReceived).WithCorrelationID("corr-1"))
	sink.Record(NewEvent(EventFailed).WithCorrelationID("corr-1").WithError(os.ErrDeadlineExceeded))

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	data, err := os.ReadFile(sink.Path())
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	if lines := bytes.Count(data, []byte("\n")); lines != 2 {
		t.Fatalf("got %d lines after close, want 2", lines)
	}
}

func TestEventWithErrorMarksResult(t *testing.T) {
	ev := NewEvent(EventFailed).WithError(os.ErrPermission)
	if ev.Result != "error" || ev.Error == "" {
		t.Fatalf("event = %+v", ev)
	}

	ok := NewEvent(EventExecuted).WithError(nil).WithResult("complete")
	if ok.Result != "complete" || ok.Error != "" {
		t.Fatalf("event = %+v", ok)
	}
}
