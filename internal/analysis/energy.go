package analysis

import "gonum.org/v1/gonum/stat"

// transientThreshold is the envelope level above which a window counts as a
// transient for the density term.
const transientThreshold = 0.7

// EnergyRating combines normalized tempo, transient density, and mean loudness
// into a 1-10 rating:
//
//	clamp(1, 10, 0.5 + 0.5*tempoNorm + 0.3*density + 0.2*avgRMS)
//
// with tempoNorm = (bpm-100)/20.
func EnergyRating(bpm float64, envelope []float32) float64 {
	tempoNorm := (bpm - 100) / 20

	transients := 0
	env64 := make([]float64, len(envelope))
	for i, v := range envelope {
		env64[i] = float64(v)
		if v > transientThreshold {
			transients++
		}
	}
	density := 0.0
	if len(envelope) > 0 {
		density = float64(transients) / float64(len(envelope))
	}
	avgRMS := stat.Mean(env64, nil)

	rating := 0.5 + 0.5*tempoNorm + 0.3*density + 0.2*avgRMS
	if rating < 1 {
		return 1
	}
	if rating > 10 {
		return 10
	}
	return rating
}
