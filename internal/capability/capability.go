package capability

import (
	"context"
	"errors"
	"time"
)

// ErrAuth marks an authentication or authorization rejection from a backend.
// Calls failing with it must not be retried; the job aborts.
var ErrAuth = errors.New("authentication rejected")

// IsAuthError reports whether err stems from a backend auth rejection.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}

// ContextChunk is a retrieved source fragment handed to the generator as
// grounding material.
type ContextChunk struct {
	ID      string
	Locator string
	Text    string
}

// GenerateRequest carries one generation call. Operation is a coarse hint
// ("outline", "script", "rewrite") that prompts embed and deterministic
// backends key on.
type GenerateRequest struct {
	Operation string
	System    string
	Prompt    string
	Context   []ContextChunk
	// Params carries small structured hints (speaker roster, turn counts)
	// that deterministic backends honor without parsing prose.
	Params map[string]string
}

// Generator is the reasoning/text generation capability.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Embedder is the text embedding capability, used to build and query both
// sides of the dual index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Clip is one synthesized audio artifact.
type Clip struct {
	Data          []byte
	Codec         string // "wav" or "pcm_s16le"
	SampleRate    int
	Channels      int
	BitsPerSample int
	Duration      time.Duration
}

// Synthesizer is the speech synthesis capability. Voice selection is keyed
// by speaker identifier, never by line content.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, speaker string) (Clip, error)
}

// HealthChecker is implemented by backends that can cheaply verify their
// upstream is reachable and authorized.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Set bundles one implementation of every capability.
type Set struct {
	Generator   Generator
	Embedder    Embedder
	Synthesizer Synthesizer
}
