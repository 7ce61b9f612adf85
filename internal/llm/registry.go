package llm

// CostTier buckets models by relative price, used for audit metadata and
// operator-facing catalog output.
type CostTier string

const (
	TierLow    CostTier = "low"
	TierMedium CostTier = "medium"
	TierHigh   CostTier = "high"
)

// ModelCapabilities describes the limits of one model.
type ModelCapabilities struct {
	ContextWindow int      `json:"context_window"`
	MaxTokens     int      `json:"max_tokens"`
	Tier          CostTier `json:"cost_tier"`
}

// Registry maps model names to capabilities and providers to their default
// model. Immutable after construction; built once at process start and
// passed explicitly to consumers.
type Registry struct {
	models   map[string]ModelCapabilities
	defaults map[string]string
}

// NewRegistry returns the registry with the built-in model catalog.
func NewRegistry() *Registry {
	return &Registry{
		models: map[string]ModelCapabilities{
			"claude-3-5-sonnet-20241022": {ContextWindow: 200000, MaxTokens: 8192, Tier: TierMedium},
			"claude-3-opus-20240229":     {ContextWindow: 200000, MaxTokens: 4096, Tier: TierHigh},
			"claude-3-5-haiku-20241022":  {ContextWindow: 200000, MaxTokens: 8192, Tier: TierLow},
		},
		defaults: map[string]string{
			"anthropic": "claude-3-5-sonnet-20241022",
		},
	}
}

// Lookup returns the capabilities recorded for a model.
func (r *Registry) Lookup(model string) (ModelCapabilities, bool) {
	caps, ok := r.models[model]
	return caps, ok
}

// DefaultModel returns the provider's default model, or empty when the
// provider is unknown.
func (r *Registry) DefaultModel(provider string) string {
	return r.defaults[provider]
}

// ClampMaxTokens bounds a requested completion size by the model's
// recorded limit. Unknown models pass the request through unchanged.
func (r *Registry) ClampMaxTokens(model string, requested int) int {
	caps, ok := r.models[model]
	if !ok || requested <= 0 {
		return requested
	}
	if requested > caps.MaxTokens {
		return caps.MaxTokens
	}
	return requested
}

// Tier returns the cost tier for a model, defaulting to medium when the
// model is not in the catalog.
func (r *Registry) Tier(model string) CostTier {
	if caps, ok := r.models[model]; ok {
		return caps.Tier
	}
	return TierMedium
}
