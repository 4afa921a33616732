package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"segue/internal/segueerr"
)

const (
	tempoFrameSize = 2048
	tempoHopSize   = 512

	minTempoBPM = 60.0
	maxTempoBPM = 200.0

	// Minimum normalized autocorrelation coefficient at the winning lag.
	// Below this the signal has no usable rhythmic periodicity.
	minTempoConfidence = 0.1
)

// EstimateTempo measures rhythmic periodicity via spectral flux
// autocorrelation. It returns a BPM in [minTempoBPM, maxTempoBPM] or a
// missing-feature error when no confident periodicity exists; it never
// substitutes a guess.
func EstimateTempo(pcm *PCM) (float64, error) {
	const op = "estimate tempo"

	flux := spectralFlux(pcm.Samples)
	secondsPerHop := float64(tempoHopSize) / float64(pcm.SampleRate)
	minLag := int(math.Ceil(60 / (maxTempoBPM * secondsPerHop)))
	maxLag := int(math.Floor(60 / (minTempoBPM * secondsPerHop)))
	if len(flux) < 2*maxLag {
		return 0, segueerr.New(segueerr.KindMissingFeature, op, "signal too short for tempo analysis")
	}

	// Zero-mean the flux so the autocorrelation coefficient of noise sits
	// near zero while a periodic train stays strongly positive.
	mean := stat.Mean(flux, nil)
	for i := range flux {
		flux[i] -= mean
	}
	power := floats.Dot(flux, flux) / float64(len(flux))
	if power == 0 {
		return 0, segueerr.New(segueerr.KindMissingFeature, op, "flat onset profile")
	}

	bestLag, bestCoeff := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		n := len(flux) - lag
		coeff := floats.Dot(flux[:n], flux[lag:]) / float64(n) / power
		// Strictly-greater keeps the smallest lag on harmonic ties, so a
		// click train resolves to its fundamental rather than half-time.
		if coeff > bestCoeff {
			bestLag, bestCoeff = lag, coeff
		}
	}
	if bestLag == 0 || bestCoeff < minTempoConfidence {
		return 0, segueerr.New(segueerr.KindMissingFeature, op, "no confident tempo (best coefficient %.3f)", bestCoeff)
	}
	return 60 / (float64(bestLag) * secondsPerHop), nil
}

// spectralFlux computes the half-wave rectified frame-to-frame increase in
// magnitude spectrum, the standard onset strength signal.
func spectralFlux(samples []float64) []float64 {
	if len(samples) < tempoFrameSize {
		return nil
	}
	frames := (len(samples)-tempoFrameSize)/tempoHopSize + 1
	flux := make([]float64, 0, frames)
	prev := make([]float64, tempoFrameSize/2)
	curr := make([]float64, tempoFrameSize/2)
	window := make([]float64, tempoFrameSize)

	for f := 0; f < frames; f++ {
		start := f * tempoHopSize
		copy(window, samples[start:start+tempoFrameSize])
		hann(window)
		spectrum := fft.FFTReal(window)
		for i := range curr {
			curr[i] = cmplx.Abs(spectrum[i])
		}
		sum := 0.0
		for i := range curr {
			if d := curr[i] - prev[i]; d > 0 {
				sum += d
			}
		}
		flux = append(flux, sum)
		prev, curr = curr, prev
	}
	// First frame's flux is its full magnitude against silence; drop it so a
	// loud opening does not skew the autocorrelation.
	if len(flux) > 0 {
		flux[0] = 0
	}
	return flux
}

func hann(window []float64) {
	n := float64(len(window) - 1)
	for i := range window {
		window[i] *= 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/n))
	}
}
