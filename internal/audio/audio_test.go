package audio_test

import (
	"bytes"
	"math"
	"testing"
	"time"

	"papercast/internal/audio"
)

func encodeTone(t *testing.T, f audio.Format, seconds float64, freq float64) []byte {
	t.Helper()
	samples := int(float64(f.SampleRate) * seconds)
	bytesPerSample := f.BitsPerSample / 8
	pcm := make([]byte, samples*f.Channels*bytesPerSample)
	for i := 0; i < samples; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(f.SampleRate))
		for ch := 0; ch < f.Channels; ch++ {
			off := (i*f.Channels + ch) * bytesPerSample
			if f.BitsPerSample == 8 {
				pcm[off] = byte(128 + v*100)
			} else {
				s := int16(v * 20000)
				pcm[off] = byte(s)
				pcm[off+1] = byte(s >> 8)
			}
		}
	}
	data, err := audio.EncodeWAV(f, pcm)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return data
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := audio.Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}
	pcm := make([]byte, 4410)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	data, err := audio.EncodeWAV(f, pcm)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	got, payload, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got != f {
		t.Fatalf("format mismatch: got %+v want %+v", got, f)
	}
	if !bytes.Equal(payload, pcm) {
		t.Fatal("PCM payload changed across encode/decode")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := audio.DecodeWAV([]byte("not a wave")); err == nil {
		t.Fatal("expected error decoding non-WAV data")
	}
}

func TestPCMDuration(t *testing.T) {
	f := audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	got := audio.PCMDuration(f, 16000)
	if got != time.Second {
		t.Fatalf("duration = %v, want 1s", got)
	}
}

func TestJoinConcatenatesUniformClips(t *testing.T) {
	f := audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	clips := [][]byte{
		encodeTone(t, f, 1.0, 220),
		encodeTone(t, f, 0.5, 440),
		encodeTone(t, f, 0.25, 330),
	}
	joined, duration, err := audio.Join(clips)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	want := 1750 * time.Millisecond
	if diff := duration - want; diff > 5*time.Millisecond || diff < -5*time.Millisecond {
		t.Fatalf("joined duration = %v, want ~%v", duration, want)
	}
	gotFormat, pcm, err := audio.DecodeWAV(joined)
	if err != nil {
		t.Fatalf("DecodeWAV(joined): %v", err)
	}
	if gotFormat != f {
		t.Fatalf("joined format = %+v, want %+v", gotFormat, f)
	}
	if len(pcm) != 16000+8000+4000 {
		t.Fatalf("joined PCM length = %d", len(pcm))
	}
}

func TestJoinRejectsMixedFormats(t *testing.T) {
	a := encodeTone(t, audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, 0.5, 220)
	b := encodeTone(t, audio.Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}, 0.5, 220)
	if _, _, err := audio.Join([][]byte{a, b}); err == nil {
		t.Fatal("expected Join to reject mixed sample rates")
	}
}

func TestUniformFormatDetectsMismatch(t *testing.T) {
	a := encodeTone(t, audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, 0.25, 220)
	b := encodeTone(t, audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}, 0.25, 220)

	if _, uniform, err := audio.UniformFormat([][]byte{a, a}); err != nil || !uniform {
		t.Fatalf("uniform clips reported non-uniform (err=%v)", err)
	}
	if _, uniform, err := audio.UniformFormat([][]byte{a, b}); err != nil || uniform {
		t.Fatalf("mixed clips reported uniform (err=%v)", err)
	}
}

func TestCombineMergesMixedFormats(t *testing.T) {
	clips := [][]byte{
		encodeTone(t, audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, 1.0, 220),
		encodeTone(t, audio.Format{SampleRate: 22050, Channels: 1, BitsPerSample: 16}, 0.5, 440),
		encodeTone(t, audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8}, 0.5, 330),
		encodeTone(t, audio.Format{SampleRate: 22050, Channels: 2, BitsPerSample: 16}, 1.0, 262),
	}
	combined, duration, err := audio.Combine(clips)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	want := 3 * time.Second
	if diff := duration - want; diff > 50*time.Millisecond || diff < -50*time.Millisecond {
		t.Fatalf("combined duration = %v, want ~%v", duration, want)
	}
	f, _, err := audio.DecodeWAV(combined)
	if err != nil {
		t.Fatalf("DecodeWAV(combined): %v", err)
	}
	if f.SampleRate != 22050 || f.Channels != 1 || f.BitsPerSample != 16 {
		t.Fatalf("combined format = %+v, want mono 16-bit at 22050", f)
	}
}

func TestCombineSingleClipKeepsContent(t *testing.T) {
	f := audio.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	clip := encodeTone(t, f, 0.5, 220)
	combined, duration, err := audio.Combine([][]byte{clip})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if diff := duration - 500*time.Millisecond; diff > 5*time.Millisecond || diff < -5*time.Millisecond {
		t.Fatalf("duration = %v", duration)
	}
	got, pcm, err := audio.DecodeWAV(combined)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got != f {
		t.Fatalf("format changed: %+v", got)
	}
	if len(pcm) != 8000 {
		t.Fatalf("PCM length = %d, want 8000", len(pcm))
	}
}
