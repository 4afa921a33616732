package analysis

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"segue/internal/segueerr"
)

// FFmpegDecoder shells out to ffmpeg for any container ffmpeg understands
// (MP3, FLAC, AAC, OGG, ...). Output is forced to f32le mono at
// TargetSampleRate so the rest of the pipeline never resamples.
type FFmpegDecoder struct {
	command string
}

func NewFFmpegDecoder(command string) *FFmpegDecoder {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegDecoder{command: command}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*PCM, error) {
	const op = "decode ffmpeg"
	cmd := exec.CommandContext(ctx, d.command,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", "1",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, segueerr.Wrap(segueerr.KindDecode, op, ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return nil, segueerr.Wrap(segueerr.KindDecode, op, err)
		}
		return nil, segueerr.New(segueerr.KindDecode, op, "%s", detail)
	}

	raw := stdout.Bytes()
	samples := make([]float64, len(raw)/4)
	for i := range samples {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return &PCM{Samples: samples, SampleRate: TargetSampleRate}, nil
}

// AutoDecoder routes WAV bytes to the native parser and everything else to
// ffmpeg. It keeps tests and small deployments free of an ffmpeg dependency
// as long as they stick to WAV input.
type AutoDecoder struct {
	wav    *WAVDecoder
	ffmpeg *FFmpegDecoder
}

func NewAutoDecoder(ffmpegCommand string) *AutoDecoder {
	return &AutoDecoder{wav: NewWAVDecoder(), ffmpeg: NewFFmpegDecoder(ffmpegCommand)}
}

func (d *AutoDecoder) Decode(ctx context.Context, data []byte) (*PCM, error) {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return d.wav.Decode(ctx, data)
	}
	return d.ffmpeg.Decode(ctx, data)
}
