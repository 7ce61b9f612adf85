package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-3-5-sonnet-20241022"
	anthropicAPIVersion     = "2023-06-01"
	anthropicMaxTokens      = 4096
	anthropicTimeout        = 120 * time.Second
)

// AnthropicConfig carries explicit settings for the Anthropic collaborator.
// Missing values fall back to ANTHROPIC_* environment variables, then to
// package defaults.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AnthropicCollaborator calls the Anthropic messages API.
type AnthropicCollaborator struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropic builds the collaborator, resolving configuration from cfg,
// then the conventional environment variables, then defaults. The API key
// is the only required setting.
func NewAnthropic(cfg AnthropicConfig, registry *Registry, logger *slog.Logger) (*AnthropicCollaborator, error) {
	apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: missing API key (set collaborator.api_key or ANTHROPIC_API_KEY)")
	}

	model := firstNonEmpty(cfg.Model, os.Getenv("ANTHROPIC_MODEL"))
	if model == "" && registry != nil {
		model = registry.DefaultModel("anthropic")
	}
	if model == "" {
		model = anthropicDefaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		if v := os.Getenv("ANTHROPIC_MAX_TOKENS"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				maxTokens = parsed
			}
		}
	}
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	if registry != nil {
		maxTokens = registry.ClampMaxTokens(model, maxTokens)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = anthropicTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &AnthropicCollaborator{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(firstNonEmpty(cfg.BaseURL, os.Getenv("ANTHROPIC_BASE_URL"), anthropicDefaultBaseURL), "/"),
		maxTokens:  maxTokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *AnthropicCollaborator) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate sends one user message and returns the concatenated text blocks
// of the response.
func (c *AnthropicCollaborator) Generate(ctx context.Context, prompt, systemPrompt string, mode Mode) (string, error) {
	payload, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		System:      systemPrompt,
		Temperature: mode.Temperature(),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("anthropic: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic: API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: response contained no text blocks")
	}

	if c.logger != nil {
		c.logger.Debug("anthropic generation complete",
			slog.String("model", c.model),
			slog.String("mode", string(mode)),
			slog.Int("input_tokens", parsed.Usage.InputTokens),
			slog.Int("output_tokens", parsed.Usage.OutputTokens))
	}
	return text.String(), nil
}
