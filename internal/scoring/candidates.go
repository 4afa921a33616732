package scoring

import (
	"math"
	"sort"

	"segue/internal/features"
	"segue/internal/similarity"
)

// Fraction of each track's phrases considered for transition boundaries: the
// tail of the outgoing track crossed with the head of the incoming one.
const boundaryFraction = 0.3

// MinCandidateScore is the floor below which a transition candidate is not
// reported.
const MinCandidateScore = 0.4

// SubScores are the per-factor components of a transition candidate.
type SubScores struct {
	Harmonic float64 `json:"harmonic"`
	Tempo    float64 `json:"tempo"`
	Energy   float64 `json:"energy"`
	Timing   float64 `json:"timing"`
	Contour  float64 `json:"contour"`
}

// TransitionCandidate is one scored transition boundary between two tracks.
type TransitionCandidate struct {
	FromPosition float64   `json:"from_position_seconds"`
	ToPosition   float64   `json:"to_position_seconds"`
	Score        float64   `json:"score"`
	SubScores    SubScores `json:"sub_scores"`
}

// Track bundles the inputs to pairwise scoring.
type Track struct {
	Summary  *features.Summary
	Features *features.FeatureSet
}

// TransitionCandidates scores boundaries between the last 30% of the outgoing
// track's phrases and the first 30% of the incoming track's, returning the
// top k candidates at or above MinCandidateScore in descending score order.
func TransitionCandidates(outgoing, incoming Track, k int) ([]TransitionCandidate, error) {
	harmonic := HarmonicScore(outgoing.Summary.Key, incoming.Summary.Key)
	tempo := TempoScore(outgoing.Summary.TempoBPM, incoming.Summary.TempoBPM)
	energy := EnergyTransitionScore(outgoing.Summary.Energy, incoming.Summary.Energy)

	outVecs := outgoing.Features.PhraseVectors
	inVecs := incoming.Features.PhraseVectors
	outStart := len(outVecs) - int(math.Ceil(float64(len(outVecs))*boundaryFraction))
	inEnd := int(math.Ceil(float64(len(inVecs)) * boundaryFraction))

	var candidates []TransitionCandidate
	for i := outStart; i < len(outVecs); i++ {
		for j := 0; j < inEnd; j++ {
			contour, err := similarity.Cosine(outVecs[i], inVecs[j])
			if err != nil {
				return nil, err
			}
			posOut := float64(i) / float64(len(outVecs))
			posIn := float64(j) / float64(len(inVecs))
			subs := SubScores{
				Harmonic: harmonic,
				Tempo:    tempo,
				Energy:   energy,
				Timing:   TimingScore(posOut, posIn),
				Contour:  clampUnit(contour),
			}
			score := weightHarmonic*subs.Harmonic +
				weightTempo*subs.Tempo +
				weightEnergy*subs.Energy +
				weightTiming*subs.Timing +
				weightContour*subs.Contour
			if score < MinCandidateScore {
				continue
			}
			candidates = append(candidates, TransitionCandidate{
				FromPosition: posOut * outgoing.Summary.DurationSeconds,
				ToPosition:   posIn * incoming.Summary.DurationSeconds,
				Score:        score,
				SubScores:    subs,
			})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].Score > candidates[b].Score })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}
