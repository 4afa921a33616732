package scoring

import (
	"context"
	"log/slog"
	"sort"

	"segue/internal/logging"
	"segue/internal/similarity"
)

const (
	// DefaultMinScore filters recommendations when the caller supplies none.
	DefaultMinScore = 0.4

	// Phrases compared on each side when locating the best transition point.
	transitionWindowPhrases = 3

	// Minimum phrase similarity for a transition point to be reported.
	minTransitionSimilarity = 0.5

	defaultSegmentsPerTrack = 3
)

// RecommendationScores are the per-factor components of a recommendation.
type RecommendationScores struct {
	Harmonic float64 `json:"harmonic"`
	Tempo    float64 `json:"tempo"`
	Energy   float64 `json:"energy"`
	Texture  float64 `json:"texture"`
	Phrase   float64 `json:"phrase"`
}

// TransitionPoint is the best phrase boundary pair found between two tracks.
type TransitionPoint struct {
	FromPosition float64 `json:"from_position_seconds"`
	ToPosition   float64 `json:"to_position_seconds"`
	Similarity   float64 `json:"similarity"`
}

// Recommendation rates one library track as a follow-up to the source track.
type Recommendation struct {
	TrackID        string               `json:"track_id"`
	Score          float64              `json:"score"`
	Scores         RecommendationScores `json:"scores"`
	BestTransition *TransitionPoint     `json:"best_transition,omitempty"`
	Segments       []similarity.Match   `json:"segments,omitempty"`
}

// Options tune a recommendation query.
type Options struct {
	Limit            int
	MinScore         float64 // zero means DefaultMinScore
	IncludeSegments  bool
	SegmentsPerTrack int
}

// Recommender scores whole tracks against a source track.
type Recommender struct {
	corpus similarity.Corpus
	logger *slog.Logger
}

func NewRecommender(corpus similarity.Corpus, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recommender{corpus: corpus, logger: logger}
}

// Recommend rates every other library track as a follow-up to sourceID and
// returns the top matches in descending score order. A track that fails to
// load or score is skipped with the error recorded, never failing the query.
func (r *Recommender) Recommend(ctx context.Context, sourceID string, opts Options) ([]Recommendation, error) {
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	segmentsPerTrack := opts.SegmentsPerTrack
	if segmentsPerTrack <= 0 {
		segmentsPerTrack = defaultSegmentsPerTrack
	}

	sourceSet, sourceSummary, err := r.corpus.Features(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	source := Track{Summary: sourceSummary, Features: sourceSet}
	sourceTexture := meanPool(sourceSet.PhraseVectors)
	sourceMid := sourceSet.PhraseVectors[len(sourceSet.PhraseVectors)/2]

	trackIDs, err := r.corpus.Tracks(ctx)
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	for _, trackID := range trackIDs {
		if trackID == sourceID {
			continue
		}
		rec, err := r.scoreTrack(ctx, source, sourceTexture, sourceMid, trackID, opts.IncludeSegments, segmentsPerTrack)
		if err != nil {
			r.logger.Warn("skipping track during recommendation",
				logging.String(logging.FieldTrackID, trackID),
				logging.Error(err))
			continue
		}
		if rec.Score >= minScore {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

func (r *Recommender) scoreTrack(ctx context.Context, source Track, sourceTexture, sourceMid []float32, trackID string, includeSegments bool, segmentsPerTrack int) (Recommendation, error) {
	set, summary, err := r.corpus.Features(ctx, trackID)
	if err != nil {
		return Recommendation{}, err
	}

	texture, err := similarity.Cosine(sourceTexture, meanPool(set.PhraseVectors))
	if err != nil {
		return Recommendation{}, err
	}
	phrase, err := similarity.Cosine(sourceMid, set.PhraseVectors[len(set.PhraseVectors)/2])
	if err != nil {
		return Recommendation{}, err
	}

	scores := RecommendationScores{
		Harmonic: HarmonicScore(source.Summary.Key, summary.Key),
		Tempo:    TempoScore(source.Summary.TempoBPM, summary.TempoBPM),
		Energy:   EnergyTransitionScore(source.Summary.Energy, summary.Energy),
		Texture:  clampUnit(texture),
		Phrase:   clampUnit(phrase),
	}
	rec := Recommendation{
		TrackID: trackID,
		Score: recWeightHarmonic*scores.Harmonic +
			recWeightTempo*scores.Tempo +
			recWeightEnergy*scores.Energy +
			recWeightTexture*scores.Texture +
			recWeightPhrase*scores.Phrase,
		Scores: scores,
	}

	point, err := bestTransition(source, Track{Summary: summary, Features: set})
	if err != nil {
		return Recommendation{}, err
	}
	rec.BestTransition = point

	if includeSegments {
		rec.Segments, err = segmentMatches(sourceMid, trackID, set.PhraseVectors, summary.DurationSeconds, segmentsPerTrack)
		if err != nil {
			return Recommendation{}, err
		}
	}
	return rec, nil
}

// bestTransition compares the source's last phrases against the candidate's
// first phrases and keeps the most similar pair, if convincing enough.
func bestTransition(source, target Track) (*TransitionPoint, error) {
	outVecs := source.Features.PhraseVectors
	inVecs := target.Features.PhraseVectors
	outStart := len(outVecs) - transitionWindowPhrases
	if outStart < 0 {
		outStart = 0
	}
	inEnd := transitionWindowPhrases
	if inEnd > len(inVecs) {
		inEnd = len(inVecs)
	}

	var best *TransitionPoint
	for i := outStart; i < len(outVecs); i++ {
		for j := 0; j < inEnd; j++ {
			sim, err := similarity.Cosine(outVecs[i], inVecs[j])
			if err != nil {
				return nil, err
			}
			if sim <= minTransitionSimilarity {
				continue
			}
			if best == nil || sim > best.Similarity {
				best = &TransitionPoint{
					FromPosition: float64(i) / float64(len(outVecs)) * source.Summary.DurationSeconds,
					ToPosition:   float64(j) / float64(len(inVecs)) * target.Summary.DurationSeconds,
					Similarity:   sim,
				}
			}
		}
	}
	return best, nil
}

// segmentMatches ranks the candidate's phrases against the source's mid-point
// vector.
func segmentMatches(query []float32, trackID string, vectors [][]float32, duration float64, k int) ([]similarity.Match, error) {
	matches := make([]similarity.Match, 0, len(vectors))
	for i, vec := range vectors {
		score, err := similarity.Cosine(query, vec)
		if err != nil {
			return nil, err
		}
		matches = append(matches, similarity.Match{
			TrackID:  trackID,
			Position: float64(i) / float64(len(vectors)) * duration,
			Score:    score,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// meanPool averages a set of equal-dimension vectors into one.
func meanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	pooled := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for d, v := range vec {
			pooled[d] += v
		}
	}
	for d := range pooled {
		pooled[d] /= float32(len(vectors))
	}
	return pooled
}
