package mock

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"papercast/internal/audio"
	"papercast/internal/capability"
)

const (
	defaultSampleRate = 22050
	wordsPerSecond    = 2.5
)

// Synthesizer renders sine-tone WAV clips whose duration scales with the word
// count of the text. Each speaker gets a fixed pitch so clips remain
// distinguishable, and per-speaker format overrides allow tests to force a
// format mismatch during assembly.
type Synthesizer struct {
	sampleRate int
	overrides  map[string]audio.Format
}

// NewSynthesizer builds a tone synthesizer emitting 16-bit mono PCM.
func NewSynthesizer(sampleRate int) *Synthesizer {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Synthesizer{sampleRate: sampleRate, overrides: map[string]audio.Format{}}
}

// OverrideFormat forces a specific output format for one speaker.
func (s *Synthesizer) OverrideFormat(speaker string, format audio.Format) {
	s.overrides[strings.ToLower(speaker)] = format
}

// Synthesize renders text as a tone clip for the given speaker voice.
func (s *Synthesizer) Synthesize(_ context.Context, text, speaker string) (capability.Clip, error) {
	format := audio.Format{SampleRate: s.sampleRate, Channels: 1, BitsPerSample: 16}
	if override, ok := s.overrides[strings.ToLower(speaker)]; ok {
		format = override
	}
	if !format.Valid() {
		return capability.Clip{}, fmt.Errorf("mock synthesize: invalid format for speaker %q", speaker)
	}

	seconds := float64(len(strings.Fields(text))) / wordsPerSecond
	if seconds < 1 {
		seconds = 1
	}
	samples := int(seconds * float64(format.SampleRate))
	freq := speakerPitch(speaker)

	pcm := make([]byte, 0, samples*format.Channels*format.BitsPerSample/8)
	for i := 0; i < samples; i++ {
		value := math.Sin(2 * math.Pi * freq * float64(i) / float64(format.SampleRate))
		for ch := 0; ch < format.Channels; ch++ {
			switch format.BitsPerSample {
			case 8:
				pcm = append(pcm, byte(int(value*96)+128))
			case 16:
				v := int16(value * 16000)
				pcm = append(pcm, byte(v), byte(v>>8))
			}
		}
	}

	data, err := audio.EncodeWAV(format, pcm)
	if err != nil {
		return capability.Clip{}, fmt.Errorf("mock synthesize: %w", err)
	}
	return capability.Clip{
		Data:          data,
		Codec:         "wav",
		SampleRate:    format.SampleRate,
		Channels:      format.Channels,
		BitsPerSample: format.BitsPerSample,
		Duration:      time.Duration(float64(time.Second) * float64(samples) / float64(format.SampleRate)),
	}, nil
}

// HealthCheck always succeeds.
func (s *Synthesizer) HealthCheck(context.Context) error { return nil }

func speakerPitch(speaker string) float64 {
	var sum int
	for _, r := range strings.ToLower(speaker) {
		sum += int(r)
	}
	// Pitches stay in a comfortable 220-660 Hz band.
	return 220 + float64(sum%8)*55
}
