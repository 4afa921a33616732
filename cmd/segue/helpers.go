package main

import (
	"context"
	"fmt"
	"time"

	"segue/internal/config"
	"segue/internal/ingest"
	"segue/internal/jobs"
	"segue/internal/logging"
	"segue/internal/manifest"
)

// retryErrored requeues errored manifests and publishes a fresh analysis job
// for each. With no ids, every errored manifest is retried.
func retryErrored(ctx context.Context, cfg *config.Config, store *manifest.Store, jobStore *jobs.Store, ids []string) (int, error) {
	errored, err := store.List(ctx, manifest.StatusError)
	if err != nil {
		return 0, err
	}
	selected := errored
	if len(ids) > 0 {
		wanted := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			wanted[id] = struct{}{}
		}
		selected = selected[:0]
		for _, m := range errored {
			if _, ok := wanted[m.ID]; ok {
				selected = append(selected, m)
			}
		}
		if len(selected) != len(ids) {
			return 0, fmt.Errorf("some tracks are not in error state (%d of %d match)", len(selected), len(ids))
		}
	}
	if len(selected) == 0 {
		return 0, nil
	}

	selectedIDs := make([]string, len(selected))
	for i, m := range selected {
		selectedIDs[i] = m.ID
	}
	if _, err := store.RetryErrored(ctx, selectedIDs...); err != nil {
		return 0, err
	}

	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	queue := jobs.NewQueue(jobStore, cfg.Workflow.Workers, poll, logging.NewNop())
	for _, m := range selected {
		payload := ingest.AnalyzePayload{TrackID: m.ID, AudioPath: m.SourcePath}
		if _, err := queue.Publish(ctx, ingest.JobTypeAnalyzeTrack, m.ID, payload); err != nil {
			return 0, err
		}
	}
	return len(selected), nil
}
