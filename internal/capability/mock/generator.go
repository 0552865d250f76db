package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"papercast/internal/capability"
)

// Generator composes deterministic JSON responses from the supplied context
// chunks. It understands the three operations the pipeline issues: outline,
// script, and rewrite.
type Generator struct{}

// NewGenerator constructs the deterministic generator.
func NewGenerator() *Generator { return &Generator{} }

// Generate dispatches on the request operation.
func (g *Generator) Generate(_ context.Context, req capability.GenerateRequest) (string, error) {
	switch req.Operation {
	case "outline":
		return g.outline(req)
	case "script":
		return g.script(req)
	case "rewrite":
		return g.rewrite(req)
	default:
		return "", fmt.Errorf("mock generate: unknown operation %q", req.Operation)
	}
}

// HealthCheck always succeeds; the mock has no upstream.
func (g *Generator) HealthCheck(context.Context) error { return nil }

func (g *Generator) outline(req capability.GenerateRequest) (string, error) {
	if len(req.Context) == 0 {
		return "", fmt.Errorf("mock outline: no context chunks")
	}
	topic := leadingWords(req.Context[0].Text, 6)
	points := make([]string, 0, 3)
	for i, chunk := range req.Context {
		if i == 3 {
			break
		}
		points = append(points, firstSentence(chunk.Text))
	}
	payload := map[string]any{
		"topic":      topic,
		"key_points": points,
	}
	return encode(payload)
}

func (g *Generator) script(req capability.GenerateRequest) (string, error) {
	if len(req.Context) == 0 {
		return "", fmt.Errorf("mock script: no context chunks")
	}
	speakers := splitParam(req.Params["speakers"])
	if len(speakers) == 0 {
		speakers = []string{"host", "expert"}
	}
	turns := paramInt(req.Params, "turns", 4)

	lines := make([]map[string]any, 0, turns)
	for i := 0; i < turns; i++ {
		chunk := req.Context[i%len(req.Context)]
		lines = append(lines, map[string]any{
			"speaker":   speakers[i%len(speakers)],
			"text":      firstSentence(chunk.Text),
			"citations": []string{chunk.ID},
		})
	}
	return encode(map[string]any{"lines": lines})
}

func (g *Generator) rewrite(req capability.GenerateRequest) (string, error) {
	if len(req.Context) == 0 {
		return "", fmt.Errorf("mock rewrite: no context chunks")
	}
	chunk := req.Context[0]
	return encode(map[string]any{
		"text":      firstSentence(chunk.Text),
		"citations": []string{chunk.ID},
	})
}

func encode(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mock generate: encode payload: %w", err)
	}
	return string(data), nil
}

func splitParam(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func paramInt(params map[string]string, key string, fallback int) int {
	if raw, ok := params[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func leadingWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
	}
	return text
}
