package analysis

import "context"

// TargetSampleRate is the rate every decoder output is normalized to before
// feature extraction.
const TargetSampleRate = 44100

// PCM is decoded mono audio at TargetSampleRate.
type PCM struct {
	Samples    []float64
	SampleRate int
}

// DurationSeconds returns the clip length implied by the sample count.
func (p *PCM) DurationSeconds() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// Decoder turns raw container bytes into normalized mono PCM. Implementations
// must be deterministic: identical input bytes yield identical samples.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*PCM, error)
}
