package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected v, got %q", got)
	}

	// Mutating the returned slice must not corrupt the stored value.
	got[0] = 'x'
	again, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(again) != "v" {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if err := m.Set(ctx, "short", []byte("v"), 5*time.Millisecond); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := m.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry miss, got %v", err)
	}

	// SetNX succeeds on an expired key.
	if err := m.Set(ctx, "nx", []byte("old"), 5*time.Millisecond); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	stored, err := m.SetNX(ctx, "nx", []byte("new"), 0)
	if err != nil {
		t.Fatalf("SetNX returned error: %v", err)
	}
	if !stored {
		t.Fatalf("expected SetNX to store over expired key")
	}
}

func TestMemoryProviderSetNXExisting(t *testing.T) {
	m := NewMemoryProvider()
	ctx := context.Background()

	if _, err := m.SetNX(ctx, "k", []byte("first"), 0); err != nil {
		t.Fatalf("SetNX returned error: %v", err)
	}
	stored, err := m.SetNX(ctx, "k", []byte("second"), 0)
	if err != nil {
		t.Fatalf("SetNX returned error: %v", err)
	}
	if stored {
		t.Fatalf("expected SetNX to refuse existing key")
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("expected first value retained, got %q", got)
	}
}

func TestNoopProvider(t *testing.T) {
	var p NoopProvider
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss from noop, got %v", err)
	}
}
