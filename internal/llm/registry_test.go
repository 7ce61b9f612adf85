package llm

import "testing"

func TestRegistryDefaults(t *testing.T) {
	reg := NewRegistry()

	model := reg.DefaultModel("anthropic")
	if model == "" {
		t.Fatalf("expected a default anthropic model")
	}
	caps, ok := reg.Lookup(model)
	if !ok {
		t.Fatalf("default model %q missing from catalog", model)
	}
	if caps.ContextWindow <= 0 || caps.MaxTokens <= 0 {
		t.Fatalf("default model has invalid capabilities: %+v", caps)
	}
}

func TestRegistryClampMaxTokens(t *testing.T) {
	reg := NewRegistry()

	if got := reg.ClampMaxTokens("claude-3-opus-20240229", 100000); got != 4096 {
		t.Fatalf("expected clamp to 4096, got %d", got)
	}
	if got := reg.ClampMaxTokens("claude-3-opus-20240229", 1024); got != 1024 {
		t.Fatalf("expected unclamped 1024, got %d", got)
	}
	if got := reg.ClampMaxTokens("unknown-model", 9999); got != 9999 {
		t.Fatalf("unknown model should pass through, got %d", got)
	}
}

func TestRegistryTierFallback(t *testing.T) {
	reg := NewRegistry()
	if got := reg.Tier("unknown-model"); got != TierMedium {
		t.Fatalf("expected medium fallback tier, got %q", got)
	}
	if got := reg.Tier("claude-3-5-haiku-20241022"); got != TierLow {
		t.Fatalf("expected low tier, got %q", got)
	}
}
