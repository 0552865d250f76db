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

	"papercast/internal/audio"
	"papercast/internal/capability"
	"papercast/internal/config"
)

// Synthesizer talks to an OpenAI-compatible /audio/speech endpoint and
// requests WAV output so clips stay inspectable without external tooling.
type Synthesizer struct {
	cfg        config.Speech
	httpClient *http.Client
	retry      retryPolicy
}

// NewSynthesizer constructs a speech client from configuration.
func NewSynthesizer(cfg config.Speech, opts ...Option) *Synthesizer {
	client, retry := resolveOptions(cfg.TimeoutSeconds, opts)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1/audio/speech"
	}
	return &Synthesizer{cfg: cfg, httpClient: client, retry: retry}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize renders text with the voice mapped to the speaker. Speakers
// without a configured voice are an error; voice choice must never depend
// on line content.
func (s *Synthesizer) Synthesize(ctx context.Context, text, speaker string) (capability.Clip, error) {
	var empty capability.Clip
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return empty, errors.New("speech: api key required")
	}
	if strings.TrimSpace(text) == "" {
		return empty, errors.New("speech: text required")
	}
	voice, ok := s.cfg.Voices[strings.ToLower(strings.TrimSpace(speaker))]
	if !ok || strings.TrimSpace(voice) == "" {
		return empty, fmt.Errorf("speech: no voice configured for speaker %q", speaker)
	}

	var clip capability.Clip
	err := s.retry.run(ctx, "speech", func() error {
		data, err := s.sendOnce(ctx, text, voice)
		if err != nil {
			return err
		}
		format, pcm, err := audio.DecodeWAV(data)
		if err != nil {
			return fmt.Errorf("speech: decode clip: %w", err)
		}
		clip = capability.Clip{
			Data:          data,
			Codec:         "wav",
			SampleRate:    format.SampleRate,
			Channels:      format.Channels,
			BitsPerSample: format.BitsPerSample,
			Duration:      audio.PCMDuration(format, len(pcm)),
		}
		return nil
	})
	return clip, err
}

// HealthCheck synthesizes a short probe phrase with the first configured
// voice.
func (s *Synthesizer) HealthCheck(ctx context.Context) error {
	for speaker := range s.cfg.Voices {
		_, err := s.Synthesize(ctx, "ping", speaker)
		return err
	}
	return errors.New("speech health: no voices configured")
}

func (s *Synthesizer) sendOnce(ctx context.Context, text, voice string) ([]byte, error) {
	encoded, err := json.Marshal(speechRequest{
		Model:          s.cfg.Model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("speech request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("speech request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, statusError(resp.StatusCode, string(body), retryAfter)
	}
	if len(body) == 0 {
		return nil, errors.New("speech request: empty audio payload")
	}
	return body, nil
}
