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

	"golang.org/x/sync/errgroup"

	"papercast/internal/config"
)

// embedBatchWorkers bounds concurrent embedding requests so index builds do
// not trip provider rate limits.
const embedBatchWorkers = 4

// Embedder talks to an OpenAI-compatible /embeddings endpoint.
type Embedder struct {
	cfg        config.Embedding
	httpClient *http.Client
	retry      retryPolicy
}

// NewEmbedder constructs an embeddings client from configuration.
func NewEmbedder(cfg config.Embedding, opts ...Option) *Embedder {
	client, retry := resolveOptions(cfg.TimeoutSeconds, opts)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1/embeddings"
	}
	return &Embedder{cfg: cfg, httpClient: client, retry: retry}
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(e.cfg.APIKey) == "" {
		return nil, errors.New("embed: api key required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embed: text required")
	}
	var vector []float32
	err := e.retry.run(ctx, "embed", func() error {
		result, err := e.sendOnce(ctx, text)
		if err != nil {
			return err
		}
		vector = result
		return nil
	})
	return vector, err
}

// EmbedBatch embeds texts with bounded parallelism, preserving order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(embedBatchWorkers)
	for i, text := range texts {
		i, text := i, text
		group.Go(func() error {
			vec, err := e.Embed(groupCtx, text)
			if err != nil {
				return fmt.Errorf("embed batch item %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// HealthCheck embeds a short probe string.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	_, err := e.Embed(ctx, "ping")
	return err
}

func (e *Embedder) sendOnce(ctx context.Context, text string) ([]float32, error) {
	encoded, err := json.Marshal(embeddingRequest{
		Model:      e.cfg.Model,
		Input:      text,
		Dimensions: e.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embed request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("embed request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, statusError(resp.StatusCode, string(body), retryAfter)
	}
	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("embed request: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("embed request: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, errors.New("embed request: empty embedding")
	}
	return decoded.Data[0].Embedding, nil
}
