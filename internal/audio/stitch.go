package audio

import (
	"errors"
	"fmt"
	"time"
)

// Join concatenates WAV clips that share one format into a single
// container. The PCM payloads are copied as-is; no samples are touched.
func Join(clips [][]byte) ([]byte, time.Duration, error) {
	if len(clips) == 0 {
		return nil, 0, errors.New("join: no clips")
	}
	var (
		format  Format
		payload []byte
	)
	for i, clip := range clips {
		f, pcm, err := DecodeWAV(clip)
		if err != nil {
			return nil, 0, fmt.Errorf("join: clip %d: %w", i, err)
		}
		if i == 0 {
			format = f
		} else if f != format {
			return nil, 0, fmt.Errorf("join: clip %d format %+v differs from %+v", i, f, format)
		}
		payload = append(payload, pcm...)
	}
	out, err := EncodeWAV(format, payload)
	if err != nil {
		return nil, 0, err
	}
	return out, PCMDuration(format, len(payload)), nil
}

// UniformFormat reports whether every clip decodes to the same PCM format.
func UniformFormat(clips [][]byte) (Format, bool, error) {
	if len(clips) == 0 {
		return Format{}, false, errors.New("no clips")
	}
	var format Format
	for i, clip := range clips {
		f, _, err := DecodeWAV(clip)
		if err != nil {
			return Format{}, false, fmt.Errorf("clip %d: %w", i, err)
		}
		if i == 0 {
			format = f
			continue
		}
		if f != format {
			return format, false, nil
		}
	}
	return format, true, nil
}

// Combine merges clips of differing formats: every clip is decoded,
// mixed down to mono, resampled to the highest sample rate present, and
// the result is encoded exactly once as 16-bit PCM.
func Combine(clips [][]byte) ([]byte, time.Duration, error) {
	if len(clips) == 0 {
		return nil, 0, errors.New("combine: no clips")
	}

	target := Format{Channels: 1, BitsPerSample: 16}
	decoded := make([]Format, len(clips))
	payloads := make([][]byte, len(clips))
	for i, clip := range clips {
		f, pcm, err := DecodeWAV(clip)
		if err != nil {
			return nil, 0, fmt.Errorf("combine: clip %d: %w", i, err)
		}
		decoded[i] = f
		payloads[i] = pcm
		if f.SampleRate > target.SampleRate {
			target.SampleRate = f.SampleRate
		}
	}

	var samples []int16
	for i := range payloads {
		samples = append(samples, resample(toMono(decoded[i], payloads[i]), decoded[i].SampleRate, target.SampleRate)...)
	}

	payload := make([]byte, len(samples)*2)
	for i, sample := range samples {
		payload[i*2] = byte(sample)
		payload[i*2+1] = byte(sample >> 8)
	}
	out, err := EncodeWAV(target, payload)
	if err != nil {
		return nil, 0, err
	}
	return out, PCMDuration(target, len(payload)), nil
}

// toMono decodes raw PCM into mono 16-bit samples, averaging channels.
func toMono(f Format, pcm []byte) []int16 {
	bytesPerSample := f.BitsPerSample / 8
	frameSize := bytesPerSample * f.Channels
	if frameSize == 0 {
		return nil
	}
	frames := len(pcm) / frameSize
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < f.Channels; ch++ {
			offset := i*frameSize + ch*bytesPerSample
			switch f.BitsPerSample {
			case 8:
				// 8-bit WAV is unsigned.
				sum += (int(pcm[offset]) - 128) << 8
			case 16:
				sum += int(int16(uint16(pcm[offset]) | uint16(pcm[offset+1])<<8))
			}
		}
		out[i] = int16(sum / f.Channels)
	}
	return out
}

// resample converts mono samples between rates with nearest-neighbor
// selection. Speech clips tolerate this fine and it keeps the combiner
// dependency-free.
func resample(samples []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, outLen)
	for i := range out {
		src := int(int64(i) * int64(from) / int64(to))
		if src >= len(samples) {
			src = len(samples) - 1
		}
		out[i] = samples[src]
	}
	return out
}
