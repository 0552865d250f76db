package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Format describes the sample layout of a PCM stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// BytesPerSecond returns the PCM data rate for the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Valid reports whether the format describes playable 8- or 16-bit PCM.
func (f Format) Valid() bool {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return false
	}
	return f.BitsPerSample == 8 || f.BitsPerSample == 16
}

// PCMDuration computes the play time of byteCount bytes of PCM in the format.
func PCMDuration(f Format, byteCount int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(byteCount) / float64(bps) * float64(time.Second))
}

const riffHeaderSize = 44

// EncodeWAV wraps raw PCM data in a canonical RIFF/WAVE container.
func EncodeWAV(f Format, pcm []byte) ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("encode wav: invalid format %+v", f)
	}
	out := make([]byte, riffHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(out[32:34], uint16(f.Channels*f.BitsPerSample/8))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out, nil
}

// IsWAV sniffs the RIFF/WAVE magic.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV parses a RIFF/WAVE container and returns its format and raw PCM
// payload. Only uncompressed PCM streams are supported.
func DecodeWAV(data []byte) (Format, []byte, error) {
	var f Format
	if !IsWAV(data) {
		return f, nil, errors.New("decode wav: missing RIFF/WAVE magic")
	}

	var pcm []byte
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return f, nil, errors.New("decode wav: short fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return f, nil, fmt.Errorf("decode wav: unsupported audio format %d", audioFormat)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkLen]
		}
		// Chunks are word-aligned.
		pos = body + chunkLen
		if chunkLen%2 == 1 {
			pos++
		}
	}

	if !haveFmt {
		return f, nil, errors.New("decode wav: missing fmt chunk")
	}
	if !f.Valid() {
		return f, nil, fmt.Errorf("decode wav: unsupported format %+v", f)
	}
	if pcm == nil {
		return f, nil, errors.New("decode wav: missing data chunk")
	}
	return f, pcm, nil
}
