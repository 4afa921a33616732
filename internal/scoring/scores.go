// Package scoring rates track pairs for DJ-style transitions and produces
// whole-track recommendations on top of the similarity engine.
package scoring

import (
	"math"

	"segue/internal/music"
)

// Candidate score weights. They sum to exactly 1.0.
const (
	weightHarmonic = 0.30
	weightTempo    = 0.25
	weightEnergy   = 0.20
	weightTiming   = 0.15
	weightContour  = 0.10
)

// Recommendation score weights. They sum to exactly 1.0.
const (
	recWeightHarmonic = 0.30
	recWeightTempo    = 0.25
	recWeightEnergy   = 0.20
	recWeightTexture  = 0.15
	recWeightPhrase   = 0.10
)

// TempoScore rates BPM proximity on a piecewise scale over |a-b|. Symmetric.
func TempoScore(a, b float64) float64 {
	diff := math.Abs(a - b)
	switch {
	case diff == 0:
		return 1.00
	case diff <= 2:
		return 0.95
	case diff <= 5:
		return 0.85
	case diff <= 10:
		return 0.70
	case diff <= 15:
		return 0.50
	case diff <= 16:
		return 0.30
	default:
		return 0.10
	}
}

// HarmonicScore rates key compatibility on the Camelot wheel. Identical keys
// score 1.0, the relative major/minor 0.95, a one-step move on the same ring
// 0.85; everything else is scaled down from a base wheel-distance
// compatibility.
func HarmonicScore(k1, k2 music.Key) float64 {
	switch {
	case k1 == k2:
		return 1.00
	case k1.Relative(k2):
		return 0.95
	case k1.Adjacent(k2):
		return 0.85
	}
	base := baseCompatibility(k1, k2)
	switch {
	case base >= 0.70:
		return 0.85
	case base >= 0.50:
		return 0.65
	default:
		return base * 0.5
	}
}

// baseCompatibility maps wheel distance into [0,1], discounted when the keys
// sit on different rings.
func baseCompatibility(k1, k2 music.Key) float64 {
	base := 1 - float64(k1.WheelDistance(k2))/6
	if k1.Minor != k2.Minor {
		base *= 0.8
	}
	return base
}

// EnergyTransitionScore rates an energy move from a to b. Asymmetric: a
// gentle build outscores the equivalent drop.
func EnergyTransitionScore(a, b float64) float64 {
	d := b - a
	switch {
	case math.Abs(d) <= 0.5:
		return 1.00
	case d > 0 && d <= 2:
		return 0.90
	case d > 2 && d <= 4:
		return 0.75
	case d < 0 && d >= -2:
		return 0.85
	case d < -2 && d >= -4:
		return 0.70
	case math.Abs(d) <= 6:
		return 0.50
	default:
		return 0.20
	}
}

// TimingScore favors boundaries late in the outgoing track and early in the
// incoming track. Both positions are fractions in [0,1].
func TimingScore(posOutNorm, posInNorm float64) float64 {
	return 0.5 + 0.3*(1-posOutNorm) + 0.2*posInNorm
}

// clampUnit truncates a cosine similarity into the [0,1] sub-score range.
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
