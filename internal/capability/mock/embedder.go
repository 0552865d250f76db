package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder produces stable bag-of-words embeddings: each token hashes to a
// vector position, so overlapping texts score high on cosine similarity.
type Embedder struct {
	dimensions int
}

// NewEmbedder constructs a deterministic embedder of the given width.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Embedder{dimensions: dimensions}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dimensions)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vector[h.Sum32()%uint32(e.dimensions)]++
	}
	normalize(vector)
	return vector, nil
}

// EmbedBatch embeds texts sequentially; determinism matters more than
// throughput for the mock.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// HealthCheck always succeeds; the mock has no upstream.
func (e *Embedder) HealthCheck(context.Context) error { return nil }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vector []float32) {
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
}
