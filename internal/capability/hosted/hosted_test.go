package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"papercast/internal/audio"
	"papercast/internal/capability"
	"papercast/internal/config"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestGeneratorReturnsContent(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var payload struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(payload.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(payload.Messages))
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"topic\":\"attention\"}"}}]}`)
	})

	gen := NewGenerator(config.LLM{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})
	out, err := gen.Generate(context.Background(), capability.GenerateRequest{
		Operation: "outline",
		System:    "Respond with JSON.",
		Prompt:    "Outline the source.",
		Context:   []capability.ContextChunk{{ID: "doc-0", Locator: "p1@0", Text: "Attention is all you need."}},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	var parsed struct {
		Topic string `json:"topic"`
	}
	if err := capability.DecodeJSON(out, &parsed); err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if parsed.Topic != "attention" {
		t.Fatalf("unexpected topic %q", parsed.Topic)
	}
}

func TestGeneratorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`)
	})

	var slept []time.Duration
	gen := NewGenerator(
		config.LLM{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		WithRetry(5, 10*time.Millisecond, 50*time.Millisecond),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	if err := gen.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(slept))
	}
	if slept[1] <= slept[0] {
		t.Fatalf("expected growing backoff, got %v then %v", slept[0], slept[1])
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	gen := NewGenerator(
		config.LLM{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		WithSleeper(func(time.Duration) {}),
	)
	_, err := gen.Generate(context.Background(), capability.GenerateRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for http 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", calls.Load())
	}
}

func TestGeneratorFlagsAuthFailures(t *testing.T) {
	var calls atomic.Int32
	server := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	})

	gen := NewGenerator(
		config.LLM{APIKey: "stale-key", BaseURL: server.URL, Model: "test-model"},
		WithSleeper(func(time.Duration) {}),
	)
	_, err := gen.Generate(context.Background(), capability.GenerateRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error for http 401")
	}
	if !capability.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", calls.Load())
	}
}

func TestGeneratorRequiresAPIKey(t *testing.T) {
	gen := NewGenerator(config.LLM{Model: "test-model"})
	if _, err := gen.Generate(context.Background(), capability.GenerateRequest{Prompt: "hello"}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestEmbedderBatchPreservesOrder(t *testing.T) {
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		value := float32(len(payload.Input))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{value}}},
		})
	})

	emb := NewEmbedder(config.Embedding{APIKey: "test-key", BaseURL: server.URL, Model: "embed-model"})
	vectors, err := emb.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Fatalf("vector %d = %v, want first dim %v", i, vectors[i], want)
		}
	}
}

func TestSynthesizerDecodesClip(t *testing.T) {
	format := audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	pcm := make([]byte, 8000*2) // one second of silence
	wav, err := audio.EncodeWAV(format, pcm)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	server := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Voice          string `json:"voice"`
			ResponseFormat string `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Voice != "alloy" {
			t.Errorf("expected voice alloy, got %q", payload.Voice)
		}
		if payload.ResponseFormat != "wav" {
			t.Errorf("expected wav response format, got %q", payload.ResponseFormat)
		}
		_, _ = w.Write(wav)
	})

	syn := NewSynthesizer(config.Speech{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "tts-model",
		Voices:  map[string]string{"host": "alloy"},
	})
	clip, err := syn.Synthesize(context.Background(), "hello there", "host")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if clip.SampleRate != 8000 || clip.Channels != 1 || clip.BitsPerSample != 16 {
		t.Fatalf("unexpected clip format: %+v", clip)
	}
	if clip.Duration != time.Second {
		t.Fatalf("duration %v, want 1s", clip.Duration)
	}
}

func TestSynthesizerRejectsUnknownSpeaker(t *testing.T) {
	syn := NewSynthesizer(config.Speech{
		APIKey: "test-key",
		Voices: map[string]string{"host": "alloy"},
	})
	if _, err := syn.Synthesize(context.Background(), "hello", "narrator"); err == nil {
		t.Fatal("expected error for unmapped speaker")
	}
}
