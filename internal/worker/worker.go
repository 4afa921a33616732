// Package worker runs queued analysis jobs: it claims the manifest, extracts
// features, persists them, and advances the state machine.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"segue/internal/analysis"
	"segue/internal/features"
	"segue/internal/ingest"
	"segue/internal/jobs"
	"segue/internal/logging"
	"segue/internal/manifest"
	"segue/internal/segueerr"
)

// Analyzer is the analyze_track job handler.
type Analyzer struct {
	store     *manifest.Store
	repo      features.Repository
	extractor *analysis.Extractor
	logger    *slog.Logger
}

func NewAnalyzer(store *manifest.Store, repo features.Repository, extractor *analysis.Extractor, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{store: store, repo: repo, extractor: extractor, logger: logger}
}

// Register attaches the analyzer to its job type on the queue.
func (a *Analyzer) Register(queue *jobs.Queue) error {
	return queue.On(ingest.JobTypeAnalyzeTrack, a.handleAnalyze)
}

func (a *Analyzer) handleAnalyze(ctx context.Context, job *jobs.Job) error {
	const op = "analyze track"

	var payload ingest.AnalyzePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return segueerr.Wrap(segueerr.KindUnknown, op, err)
	}
	logger := a.logger.With(logging.String(logging.FieldTrackID, payload.TrackID))

	m, err := a.store.GetByID(ctx, payload.TrackID)
	if err != nil {
		return err
	}
	// Reprocessing a ready manifest is a no-op: the summary, features, and
	// retry count all stay as they are.
	if m.Ready() {
		logger.Debug("manifest already ready, skipping")
		return nil
	}

	if err := a.store.MarkProcessing(ctx, m.ID); err != nil {
		return err
	}
	if err := a.store.UpdateHeartbeat(ctx, m.ID); err != nil {
		logger.Warn("heartbeat update failed", logging.Error(err))
	}

	attempt := job.RetryCount + 1
	summary, _, err := a.analyze(ctx, payload)
	if err != nil {
		if markErr := a.store.MarkError(ctx, m.ID, err.Error(), attempt); markErr != nil {
			logger.Error("record manifest error", logging.Error(markErr))
		}
		return err
	}

	if err := a.store.MarkReady(ctx, m.ID, summary); err != nil {
		return err
	}
	logger.Info("track analyzed",
		logging.Float64("tempo_bpm", summary.TempoBPM),
		logging.String("key", summary.KeyToken),
		logging.Int("bars", summary.Bars),
		logging.Int("attempt", attempt),
	)
	return nil
}

func (a *Analyzer) analyze(ctx context.Context, payload ingest.AnalyzePayload) (*features.Summary, *features.FeatureSet, error) {
	const op = "analyze track"

	data, err := os.ReadFile(payload.AudioPath)
	if err != nil {
		return nil, nil, segueerr.Wrap(segueerr.KindDecode, op, err)
	}
	summary, set, err := a.extractor.Extract(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	if err := a.repo.Save(ctx, payload.TrackID, set, summary); err != nil {
		return nil, nil, err
	}
	return summary, set, nil
}
