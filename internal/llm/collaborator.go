// Package llm provides the language-model collaborator consumed by the
// classifier and interpreter. The engine must degrade gracefully without
// it, so a disabled implementation ships alongside the real one.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Mode selects the sampling profile for one generation call.
type Mode string

const (
	// ModeClassify is fully deterministic; used for incident classification.
	ModeClassify Mode = "classify"
	// ModeInterpret allows minimal variation; used for fact interpretation.
	ModeInterpret Mode = "interpret"
	// ModeFast trades determinism for latency on exploratory calls.
	ModeFast Mode = "fast"
)

// Temperature maps the mode onto a sampling temperature.
func (m Mode) Temperature() float64 {
	switch m {
	case ModeInterpret:
		return 0.1
	case ModeFast:
		return 0.3
	default:
		return 0.0
	}
}

// Collaborator generates text completions. Implementations must be safe for
// concurrent use.
type Collaborator interface {
	// Generate returns the model's text response for the prompt. The system
	// prompt may be empty.
	Generate(ctx context.Context, prompt, systemPrompt string, mode Mode) (string, error)
	// Name identifies the backing provider ("anthropic", "none", ...).
	Name() string
}

// ErrDisabled signals that no collaborator is configured. Callers switch to
// their deterministic fallback paths when they see it; it is never an
// operational failure.
var ErrDisabled = errors.New("language model collaborator is disabled")

// Disabled returns the inert collaborator.
func Disabled() Collaborator {
	return disabled{}
}

type disabled struct{}

func (disabled) Generate(context.Context, string, string, Mode) (string, error) {
	return "", ErrDisabled
}

func (disabled) Name() string { return "none" }

// Options configures the collaborator factory.
type Options struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// New builds the collaborator named by opts.Provider. An empty or "none"
// provider yields the disabled collaborator.
func New(opts Options, registry *Registry, logger *slog.Logger) (Collaborator, error) {
	switch opts.Provider {
	case "", "none":
		return Disabled(), nil
	case "anthropic":
		return NewAnthropic(AnthropicConfig{
			APIKey:    opts.APIKey,
			Model:     opts.Model,
			BaseURL:   opts.BaseURL,
			MaxTokens: opts.MaxTokens,
			Timeout:   opts.Timeout,
		}, registry, logger)
	default:
		return nil, fmt.Errorf("unknown collaborator provider %q", opts.Provider)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
