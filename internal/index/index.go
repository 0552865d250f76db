package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Kind selects which side of the dual index a retrieval targets.
type Kind string

const (
	KindFacts Kind = "facts"
	KindStyle Kind = "style"
)

// Embedder is the slice of the embedding capability the index needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is one retrieval hit.
type Result struct {
	Locator string
	ChunkID string
	Text    string
	Score   float64
}

type entry struct {
	chunkID string
	locator string
	ordinal int
	text    string
	vector  []float32
}

// Index is an immutable nearest-neighbor index over precomputed embeddings.
type Index struct {
	kind    Kind
	scope   string
	entries []entry
}

// Kind returns which side of the dual index this is.
func (ix *Index) Kind() Kind { return ix.kind }

// Scope identifies what the index covers: a document id for facts, a style
// name for style patterns.
func (ix *Index) Scope() string { return ix.scope }

// Len reports how many entries the index holds.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// BuildFacts embeds any chunks that lack vectors and assembles a facts index
// scoped to their document. Chunks belonging to a different document are
// discarded, so retrieval can never surface another document's text. The
// returned chunks carry the computed embeddings so callers can persist them.
func BuildFacts(ctx context.Context, embedder Embedder, documentID int64, chunks []Chunk) (*Index, []Chunk, error) {
	scoped := chunks[:0:0]
	for _, chunk := range chunks {
		if chunk.DocumentID == documentID {
			scoped = append(scoped, chunk)
		}
	}
	chunks = scoped

	var missing []int
	var texts []string
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, chunk.Text)
		}
	}
	if len(missing) > 0 {
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, nil, fmt.Errorf("embed chunks: %w", err)
		}
		for j, i := range missing {
			chunks[i].Embedding = vectors[j]
		}
	}

	ix := &Index{kind: KindFacts, scope: fmt.Sprintf("%d", documentID)}
	ix.entries = make([]entry, 0, len(chunks))
	for _, chunk := range chunks {
		ix.entries = append(ix.entries, entry{
			chunkID: chunk.ID,
			locator: chunk.Locator(),
			ordinal: chunk.Ordinal,
			text:    chunk.Text,
			vector:  chunk.Embedding,
		})
	}
	return ix, chunks, nil
}

// Search returns the top-k entries by cosine similarity, ties broken by
// original chunk order so results are reproducible.
func (ix *Index) Search(query []float32, k int) []Result {
	if ix == nil || len(ix.entries) == 0 || k <= 0 {
		return nil
	}
	type scored struct {
		entry
		score float64
	}
	hits := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		hits = append(hits, scored{entry: e, score: cosine(query, e.vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].ordinal < hits[j].ordinal
	})
	if k > len(hits) {
		k = len(hits)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{
			Locator: hits[i].locator,
			ChunkID: hits[i].chunkID,
			Text:    hits[i].text,
			Score:   hits[i].score,
		}
	}
	return results
}

// Retriever binds the embedding capability to a facts index and a style
// bank, exposing the single retrieval contract the pipeline consumes.
type Retriever struct {
	embedder Embedder
	facts    *Index
	style    *Index
}

// NewRetriever assembles a retriever for one episode job. The facts index is
// scoped to the job's document; the style bank is scoped to the episode
// style and shared across jobs.
func NewRetriever(embedder Embedder, facts, style *Index) *Retriever {
	return &Retriever{embedder: embedder, facts: facts, style: style}
}

// Retrieve embeds the query and searches the requested side of the dual
// index.
func (r *Retriever) Retrieve(ctx context.Context, query string, kind Kind, k int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("retrieve: empty query")
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	switch kind {
	case KindFacts:
		return r.facts.Search(vector, k), nil
	case KindStyle:
		return r.style.Search(vector, k), nil
	default:
		return nil, fmt.Errorf("retrieve: unknown index kind %q", kind)
	}
}

// FactCount reports how many chunks the facts side holds.
func (r *Retriever) FactCount() int { return r.facts.Len() }

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
