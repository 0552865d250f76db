package mock

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"papercast/internal/audio"
	"papercast/internal/capability"
)

func TestEmbedderDeterministicAndNormalized(t *testing.T) {
	emb := NewEmbedder(64)
	first, err := emb.Embed(context.Background(), "sparse retrieval over document chunks")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	second, err := emb.Embed(context.Background(), "sparse retrieval over document chunks")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(first))
	}
	var norm float64
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("embedding not deterministic at dim %d", i)
		}
		norm += float64(first[i]) * float64(first[i])
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Fatalf("expected unit norm, got %f", norm)
	}
}

func TestEmbedderDistinguishesTexts(t *testing.T) {
	emb := NewEmbedder(64)
	a, _ := emb.Embed(context.Background(), "neural networks for speech")
	b, _ := emb.Embed(context.Background(), "orbital mechanics of comets")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical embeddings")
	}
}

func sampleContext() []capability.ContextChunk {
	return []capability.ContextChunk{
		{ID: "doc1-0", Locator: "p1@0", Text: "Transformers process tokens in parallel. Attention weighs pairwise relevance."},
		{ID: "doc1-1", Locator: "p1@800", Text: "Training uses teacher forcing. Gradients flow through softmax attention."},
	}
}

func TestGeneratorOutline(t *testing.T) {
	gen := NewGenerator()
	out, err := gen.Generate(context.Background(), capability.GenerateRequest{
		Operation: "outline",
		Context:   sampleContext(),
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	var payload struct {
		Topic     string   `json:"topic"`
		KeyPoints []string `json:"key_points"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("outline not valid JSON: %v", err)
	}
	if payload.Topic == "" {
		t.Fatal("outline topic empty")
	}
	if len(payload.KeyPoints) != 2 {
		t.Fatalf("expected 2 key points, got %d", len(payload.KeyPoints))
	}
}

func TestGeneratorScriptCitesContext(t *testing.T) {
	gen := NewGenerator()
	out, err := gen.Generate(context.Background(), capability.GenerateRequest{
		Operation: "script",
		Context:   sampleContext(),
		Params:    map[string]string{"speakers": "host,expert", "turns": "4"},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	var payload struct {
		Lines []struct {
			Speaker   string   `json:"speaker"`
			Text      string   `json:"text"`
			Citations []string `json:"citations"`
		} `json:"lines"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("script not valid JSON: %v", err)
	}
	if len(payload.Lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(payload.Lines))
	}
	if payload.Lines[0].Speaker != "host" || payload.Lines[1].Speaker != "expert" {
		t.Fatalf("speakers do not alternate: %q then %q", payload.Lines[0].Speaker, payload.Lines[1].Speaker)
	}
	for i, line := range payload.Lines {
		if len(line.Citations) == 0 {
			t.Fatalf("line %d has no citations", i)
		}
	}
}

func TestGeneratorUnknownOperation(t *testing.T) {
	gen := NewGenerator()
	if _, err := gen.Generate(context.Background(), capability.GenerateRequest{Operation: "summarize"}); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestSynthesizerDurationTracksWords(t *testing.T) {
	syn := NewSynthesizer(8000)
	text := "one two three four five six seven eight nine ten"
	clip, err := syn.Synthesize(context.Background(), text, "host")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	want := time.Duration(float64(time.Second) * 10 / 2.5)
	if diff := clip.Duration - want; diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Fatalf("duration %v, want about %v", clip.Duration, want)
	}
	format, pcm, err := audio.DecodeWAV(clip.Data)
	if err != nil {
		t.Fatalf("clip is not decodable WAV: %v", err)
	}
	if format.SampleRate != 8000 || format.Channels != 1 || format.BitsPerSample != 16 {
		t.Fatalf("unexpected format %+v", format)
	}
	if len(pcm) == 0 {
		t.Fatal("clip has no PCM payload")
	}
}

func TestSynthesizerOverrideFormat(t *testing.T) {
	syn := NewSynthesizer(22050)
	syn.OverrideFormat("expert", audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8})
	clip, err := syn.Synthesize(context.Background(), "short line", "expert")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if clip.SampleRate != 8000 || clip.BitsPerSample != 8 {
		t.Fatalf("override not applied: %+v", clip)
	}
}
