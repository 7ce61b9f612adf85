package utils

import (
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	fallback := 24 * time.Hour

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
		{"", fallback},
		{"garbage", fallback},
		{"-2h", fallback},
		{"0d", fallback},
	}

	for _, tc := range cases {
		if got := ParseWindow(tc.in, fallback); got != tc.want {
			t.Fatalf("ParseWindow(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseRFC3339(t *testing.T) {
	if _, err := ParseRFC3339(""); err == nil {
		t.Fatalf("expected error for empty value")
	}
	if _, err := ParseRFC3339("not-a-time"); err == nil {
		t.Fatalf("expected error for malformed value")
	}
	got, err := ParseRFC3339("2025-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 12 {
		t.Fatalf("expected hour 12, got %d", got.Hour())
	}
}
