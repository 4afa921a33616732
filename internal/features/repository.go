package features

import "context"

// Object names inside a track's logical container. Every repository backend
// uses the same layout so stored artifacts stay portable between backends.
const (
	objectSummary       = "summary.json"
	objectBarVectors    = "bar_vectors.f32"
	objectPhraseVectors = "phrase_vectors.f32"
	objectWaveform      = "waveform.f32"
)

// Repository persists and loads a track's analysis artifacts.
//
// Save is an atomic, idempotent overwrite: a concurrent Load observes either
// the previous complete artifact set or the new one, never a mix. Load returns
// an error of kind not_found when the track has no stored features.
type Repository interface {
	Save(ctx context.Context, trackID string, set *FeatureSet, summary *Summary) error
	Load(ctx context.Context, trackID string) (*FeatureSet, *Summary, error)
	Exists(ctx context.Context, trackID string) (bool, error)
}
