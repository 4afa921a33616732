package analysis

import (
	"math"

	"segue/internal/features"
	"segue/internal/segueerr"
)

// Envelope partitions the signal into features.EnvelopeLength equal windows,
// takes the RMS of each, and normalizes the result to [0,1] by the loudest
// window. An all-zero signal is degenerate and rejected.
func Envelope(samples []float64) ([]float32, error) {
	const op = "compute envelope"
	if len(samples) == 0 {
		return nil, segueerr.New(segueerr.KindExtraction, op, "empty signal")
	}

	w := features.EnvelopeLength
	env := make([]float32, w)
	peak := 0.0
	for i := 0; i < w; i++ {
		start := i * len(samples) / w
		end := (i + 1) * len(samples) / w
		if end <= start {
			continue
		}
		sum := 0.0
		for _, s := range samples[start:end] {
			sum += s * s
		}
		rms := math.Sqrt(sum / float64(end-start))
		env[i] = float32(rms)
		if rms > peak {
			peak = rms
		}
	}

	if peak == 0 {
		return nil, segueerr.New(segueerr.KindExtraction, op, "all-zero envelope")
	}
	for i := range env {
		env[i] = float32(float64(env[i]) / peak)
	}
	return env, nil
}
