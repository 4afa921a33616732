package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"segue/internal/config"
	"segue/internal/features"
	"segue/internal/jobs"
	"segue/internal/manifest"
)

// MustOpenStore opens a manifest.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *manifest.Store {
	t.Helper()

	store, err := manifest.Open(cfg)
	if err != nil {
		t.Fatalf("manifest.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenJobStore opens a jobs.Store for tests and registers cleanup.
func MustOpenJobStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.OpenStore(cfg)
	if err != nil {
		t.Fatalf("jobs.OpenStore: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenRepository opens a directory feature repository under the config's
// feature dir.
func MustOpenRepository(t testing.TB, cfg *config.Config) *features.DirStore {
	t.Helper()

	repo, err := features.NewDirStore(cfg.FeatureStore.Dir)
	if err != nil {
		t.Fatalf("features.NewDirStore: %v", err)
	}
	return repo
}

// NewTrack creates a queued manifest for tests. The digest is derived from
// the seed so distinct seeds never collide.
func NewTrack(t testing.TB, store *manifest.Store, seed string) *manifest.Manifest {
	t.Helper()

	sum := sha256.Sum256([]byte(seed))
	digest := hex.EncodeToString(sum[:])
	m, err := store.Create(context.Background(), &manifest.Manifest{
		ID:     digest[:16],
		Title:  seed,
		Digest: digest,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return m
}
