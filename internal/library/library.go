// Package library adapts the manifest store and feature repository into the
// searchable corpus consumed by the similarity and scoring engines.
package library

import (
	"context"

	"segue/internal/features"
	"segue/internal/manifest"
)

// Library is the set of fully analyzed tracks. Only ready manifests are
// visible; queued, processing, and errored tracks never appear in search or
// recommendation results.
type Library struct {
	store *manifest.Store
	repo  features.Repository
}

func New(store *manifest.Store, repo features.Repository) *Library {
	return &Library{store: store, repo: repo}
}

// Tracks lists ready track ids in creation order. This order is the stable
// tie-break for equal similarity scores.
func (l *Library) Tracks(ctx context.Context) ([]string, error) {
	manifests, err := l.store.List(ctx, manifest.StatusReady)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(manifests))
	for i, m := range manifests {
		ids[i] = m.ID
	}
	return ids, nil
}

// Features loads a track's stored vectors and summary.
func (l *Library) Features(ctx context.Context, trackID string) (*features.FeatureSet, *features.Summary, error) {
	return l.repo.Load(ctx, trackID)
}

// Manifest returns the full manifest for a track id.
func (l *Library) Manifest(ctx context.Context, trackID string) (*manifest.Manifest, error) {
	return l.store.GetByID(ctx, trackID)
}
