package similarity

import (
	"context"
	"log/slog"
	"sort"

	"segue/internal/features"
	"segue/internal/logging"
	"segue/internal/segueerr"
)

// Scope selects which vector level a search runs against.
type Scope string

const (
	ScopeBar    Scope = "bar"
	ScopePhrase Scope = "phrase"
)

// Dim returns the fixed vector dimension for the scope.
func (s Scope) Dim() int {
	if s == ScopeBar {
		return features.BarDim
	}
	return features.PhraseDim
}

// linearScanAdvisoryTracks is the corpus size past which the linear scan is
// expected to need an approximate index; searches above it log a warning but
// still run.
const linearScanAdvisoryTracks = 10000

// Corpus exposes the searchable track set. Tracks establishes the iteration
// order, which also breaks score ties (first seen wins).
type Corpus interface {
	Tracks(ctx context.Context) ([]string, error)
	Features(ctx context.Context, trackID string) (*features.FeatureSet, *features.Summary, error)
}

// Match is one nearest-neighbor hit: a segment of a track at a timestamp.
type Match struct {
	TrackID  string  `json:"track_id"`
	Position float64 `json:"position_seconds"`
	Score    float64 `json:"score"`
}

// Engine runs top-k searches over a corpus.
type Engine struct {
	corpus Corpus
	logger *slog.Logger
}

func NewEngine(corpus Corpus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{corpus: corpus, logger: logger}
}

// NearestNeighbors scans every track's vectors at the given scope and returns
// the top k matches by descending similarity. Each vector index i of n maps to
// the timestamp (i/n)*duration. A track that fails to load or compare is
// skipped with the error recorded; it never aborts the query.
func (e *Engine) NearestNeighbors(ctx context.Context, query []float32, k int, scope Scope) ([]Match, error) {
	const op = "nearest neighbors"
	if len(query) != scope.Dim() {
		return nil, segueerr.New(segueerr.KindDimensionMismatch, op,
			"query dimension %d, want %d for %s scope", len(query), scope.Dim(), scope)
	}
	if k <= 0 {
		return nil, nil
	}

	trackIDs, err := e.corpus.Tracks(ctx)
	if err != nil {
		return nil, err
	}
	if len(trackIDs) > linearScanAdvisoryTracks {
		e.logger.Warn("corpus exceeds linear-scan advisory size",
			logging.Int("tracks", len(trackIDs)),
			logging.Int("advisory", linearScanAdvisoryTracks))
	}

	var matches []Match
	for _, trackID := range trackIDs {
		trackMatches, err := e.scanTrack(ctx, trackID, query, scope)
		if err != nil {
			e.logger.Warn("skipping track during search",
				logging.String(logging.FieldTrackID, trackID),
				logging.Error(err))
			continue
		}
		matches = append(matches, trackMatches...)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (e *Engine) scanTrack(ctx context.Context, trackID string, query []float32, scope Scope) ([]Match, error) {
	set, summary, err := e.corpus.Features(ctx, trackID)
	if err != nil {
		return nil, err
	}
	vectors := set.PhraseVectors
	if scope == ScopeBar {
		vectors = set.BarVectors
	}

	matches := make([]Match, 0, len(vectors))
	for i, vec := range vectors {
		score, err := Cosine(query, vec)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			TrackID:  trackID,
			Position: float64(i) / float64(len(vectors)) * summary.DurationSeconds,
			Score:    score,
		})
	}
	return matches, nil
}
