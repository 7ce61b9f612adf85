package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faultlinehq/faultline-engine/internal/models"
)

func TestStaticProviderSaturationScenario(t *testing.T) {
	p := NewStaticProvider()
	ref := models.ResourceRef{Type: "rds", ID: "orders-db"}

	current, err := p.MetricSeries(context.Background(), ref, "cpu", LastWindow(time.Hour))
	if err != nil {
		t.Fatalf("MetricSeries returned error: %v", err)
	}
	if len(current) == 0 {
		t.Fatalf("expected synthetic series")
	}
	if last := current[len(current)-1].Value; last != 92.3 {
		t.Fatalf("expected saturated tail 92.3, got %v", last)
	}

	yesterday := LastWindow(time.Hour)
	yesterday.Start = yesterday.Start.Add(-24 * time.Hour)
	yesterday.End = yesterday.End.Add(-24 * time.Hour)
	baseline, err := p.MetricSeries(context.Background(), ref, "cpu", yesterday)
	if err != nil {
		t.Fatalf("baseline MetricSeries returned error: %v", err)
	}
	for _, pt := range baseline {
		if pt.Value != 60.0 {
			t.Fatalf("expected flat 60.0 baseline, got %v", pt.Value)
		}
	}

	changes, err := p.RecentChanges(context.Background(), ref, LastWindow(24*time.Hour))
	if err != nil {
		t.Fatalf("RecentChanges returned error: %v", err)
	}
	if len(changes) != 1 || changes[0].EventName != "ModifyDBInstance" {
		t.Fatalf("expected single parameter-group modification, got %+v", changes)
	}
}

func TestStaticProviderErrInjection(t *testing.T) {
	p := NewStaticProvider()
	p.Err = &AuthError{Provider: "static", Err: errors.New("expired token")}

	_, err := p.Configuration(context.Background(), models.ResourceRef{Type: "rds", ID: "x"})
	if err == nil {
		t.Fatalf("expected injected error")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestStaticProviderHonoursContext(t *testing.T) {
	p := NewStaticProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Dependencies(ctx, models.ResourceRef{Type: "service", ID: "api"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStaticProviderTopConsumersLimit(t *testing.T) {
	p := NewStaticProvider()
	consumers, err := p.TopConsumers(context.Background(), "production", "cpu", LastWindow(time.Hour), 2)
	if err != nil {
		t.Fatalf("TopConsumers returned error: %v", err)
	}
	if len(consumers) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(consumers))
	}
}

func TestIsAuthError(t *testing.T) {
	wrapped := errors.Join(errors.New("outer"), &AuthError{Provider: "aws"})
	if !IsAuthError(wrapped) {
		t.Fatalf("expected wrapped auth error to be detected")
	}
	if IsAuthError(errors.New("plain")) {
		t.Fatalf("plain error misdetected as auth error")
	}
}
