package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"papercast/internal/capability"
	"papercast/internal/config"
)

// Generator talks to an OpenAI-compatible chat completions endpoint and
// always requests JSON responses.
type Generator struct {
	cfg        config.LLM
	httpClient *http.Client
	retry      retryPolicy
}

// Option customizes a hosted client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	retry      *retryPolicy
	sleeper    func(time.Duration)
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithRetry overrides the retry attempt count and backoff delays.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(o *options) {
		o.retry = &retryPolicy{maxAttempts: attempts, baseDelay: baseDelay, maxDelay: maxDelay}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *options) { o.sleeper = sleeper }
}

func resolveOptions(timeoutSeconds int, opts []Option) (*http.Client, retryPolicy) {
	resolved := options{}
	for _, opt := range opts {
		opt(&resolved)
	}
	timeout := defaultHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	client := resolved.httpClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	retry := defaultRetryPolicy()
	if resolved.retry != nil {
		retry = *resolved.retry
	}
	retry.sleeper = resolved.sleeper
	return client, retry
}

// NewGenerator constructs a chat completions client from configuration.
func NewGenerator(cfg config.LLM, opts ...Option) *Generator {
	client, retry := resolveOptions(cfg.TimeoutSeconds, opts)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1/chat/completions"
	}
	return &Generator{cfg: cfg, httpClient: client, retry: retry}
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues one JSON-only chat completion built from the request
// prompts and context chunks.
func (g *Generator) Generate(ctx context.Context, req capability.GenerateRequest) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", errors.New("llm generate: api key required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("llm generate: prompt required")
	}
	payload := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.System)},
			{Role: "user", Content: renderUserPrompt(req)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var content string
	err := g.retry.run(ctx, "llm generate", func() error {
		result, err := g.sendOnce(ctx, payload)
		if err != nil {
			return err
		}
		content = result
		return nil
	})
	return content, err
}

// HealthCheck verifies the API key and model respond to a trivial request.
func (g *Generator) HealthCheck(ctx context.Context) error {
	content, err := g.Generate(ctx, capability.GenerateRequest{
		Operation: "health",
		System:    "You must respond with JSON only.",
		Prompt:    `Respond with {"ok":true}`,
	})
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := capability.DecodeJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func renderUserPrompt(req capability.GenerateRequest) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(req.Prompt))
	if len(req.Context) > 0 {
		sb.WriteString("\n\nSource excerpts:\n")
		for _, chunk := range req.Context {
			fmt.Fprintf(&sb, "[%s] (%s) %s\n", chunk.ID, chunk.Locator, strings.TrimSpace(chunk.Text))
		}
	}
	return sb.String()
}

func (g *Generator) sendOnce(ctx context.Context, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", statusError(resp.StatusCode, string(body), retryAfter)
	}
	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("llm request: decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("llm request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errors.New("llm request: empty content")
}
