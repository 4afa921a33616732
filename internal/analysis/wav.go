package analysis

import (
	"context"
	"encoding/binary"
	"math"

	"segue/internal/segueerr"
)

// WAVDecoder parses RIFF/WAVE containers without external tooling. It accepts
// PCM (8/16/24/32-bit integer) and IEEE float32 sample formats, mixes the
// channels down to mono, and resamples to TargetSampleRate.
type WAVDecoder struct{}

func NewWAVDecoder() *WAVDecoder { return &WAVDecoder{} }

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

func (d *WAVDecoder) Decode(_ context.Context, data []byte) (*PCM, error) {
	const op = "decode wav"
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, segueerr.New(segueerr.KindDecode, op, "not a RIFF/WAVE container")
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bitDepth   int
		haveFmt    bool
		raw        []byte
	)

	// Walk the chunk list; chunks are word-aligned.
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			return nil, segueerr.New(segueerr.KindDecode, op, "truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, segueerr.New(segueerr.KindDecode, op, "fmt chunk too short")
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			raw = data[body : body+size]
		}
		offset = body + size
		if size%2 == 1 {
			offset++
		}
	}

	if !haveFmt || raw == nil {
		return nil, segueerr.New(segueerr.KindDecode, op, "missing fmt or data chunk")
	}
	if channels <= 0 || sampleRate <= 0 {
		return nil, segueerr.New(segueerr.KindDecode, op, "invalid format: %d channels at %d Hz", channels, sampleRate)
	}

	samples, err := decodeWAVSamples(format, bitDepth, raw)
	if err != nil {
		return nil, err
	}

	mono := mixdown(samples, channels)
	mono = resample(mono, sampleRate, TargetSampleRate)
	return &PCM{Samples: mono, SampleRate: TargetSampleRate}, nil
}

func decodeWAVSamples(format uint16, bitDepth int, raw []byte) ([]float64, error) {
	const op = "decode wav"
	switch {
	case format == wavFormatPCM && bitDepth == 8:
		out := make([]float64, len(raw))
		for i, b := range raw {
			out[i] = (float64(b) - 128) / 128
		}
		return out, nil
	case format == wavFormatPCM && bitDepth == 16:
		out := make([]float64, len(raw)/2)
		for i := range out {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			out[i] = float64(v) / 32768
		}
		return out, nil
	case format == wavFormatPCM && bitDepth == 24:
		out := make([]float64, len(raw)/3)
		for i := range out {
			v := int32(raw[i*3]) | int32(raw[i*3+1])<<8 | int32(raw[i*3+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xffffff)
			}
			out[i] = float64(v) / 8388608
		}
		return out, nil
	case format == wavFormatPCM && bitDepth == 32:
		out := make([]float64, len(raw)/4)
		for i := range out {
			v := int32(binary.LittleEndian.Uint32(raw[i*4:]))
			out[i] = float64(v) / 2147483648
		}
		return out, nil
	case format == wavFormatFloat && bitDepth == 32:
		out := make([]float64, len(raw)/4)
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
		return out, nil
	default:
		return nil, segueerr.New(segueerr.KindDecode, op, "unsupported sample format %d at %d bits", format, bitDepth)
	}
}

// mixdown averages interleaved channels into one.
func mixdown(samples []float64, channels int) []float64 {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// resample performs linear interpolation between rates. Adequate for feature
// extraction, where envelope windows span thousands of samples.
func resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
