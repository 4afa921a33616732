package manifest_test

import (
	"context"
	"testing"

	"segue/internal/features"
	"segue/internal/manifest"
	"segue/internal/music"
	"segue/internal/segueerr"
	"segue/internal/testsupport"
)

func TestCreateAndFetch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	created := testsupport.NewTrack(t, store, "first upload")
	if created.Status != manifest.StatusQueued {
		t.Fatalf("new manifest status = %s, want queued", created.Status)
	}

	fetched, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Digest != created.Digest || fetched.Title != "first upload" {
		t.Fatalf("unexpected fetched manifest: %+v", fetched)
	}

	found, err := store.FindByDigest(ctx, created.Digest)
	if err != nil {
		t.Fatalf("FindByDigest: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("expected to find manifest by digest, got %+v", found)
	}
}

func TestCreateDuplicateDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first := testsupport.NewTrack(t, store, "same bytes")
	_, err := store.Create(context.Background(), &manifest.Manifest{
		ID:     "different-id",
		Digest: first.Digest,
	})
	if !segueerr.IsKind(err, segueerr.KindDuplicateTrack) {
		t.Fatalf("expected duplicate_track, got %v", err)
	}
}

func TestGetMissingManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.GetByID(context.Background(), "nope")
	if !segueerr.IsKind(err, segueerr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestStateMachineHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	m := testsupport.NewTrack(t, store, "track")
	if err := store.MarkProcessing(ctx, m.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	summary := &features.Summary{
		TempoBPM:        128,
		Key:             music.MustParseKey("8A"),
		Energy:          7,
		DurationSeconds: 180,
		Bars:            96,
		Phrases:         12,
	}
	if err := store.MarkReady(ctx, m.ID, summary); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}

	got, err := store.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != manifest.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if got.Summary == nil || got.Summary.Key != summary.Key || got.Summary.Bars != 96 {
		t.Fatalf("summary not persisted: %+v", got.Summary)
	}
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	m := testsupport.NewTrack(t, store, "track")
	summary := &features.Summary{Key: music.MustParseKey("1A"), Bars: 1, Phrases: 1}

	// queued -> ready is not a legal edge.
	if err := store.MarkReady(ctx, m.ID, summary); err == nil {
		t.Fatal("expected MarkReady from queued to fail")
	}
	// queued -> error is not a legal edge either.
	if err := store.MarkError(ctx, m.ID, "boom", 1); err == nil {
		t.Fatal("expected MarkError from queued to fail")
	}

	if err := store.MarkProcessing(ctx, m.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkReady(ctx, m.ID, summary); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	// ready is terminal: no further claim is possible.
	if err := store.MarkProcessing(ctx, m.ID); err == nil {
		t.Fatal("expected MarkProcessing from ready to fail")
	}
}

func TestErrorRetryPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	m := testsupport.NewTrack(t, store, "flaky track")
	if err := store.MarkProcessing(ctx, m.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if err := store.MarkError(ctx, m.ID, "decode wav: bad riff header", 1); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	got, err := store.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != manifest.StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorReason != "decode wav: bad riff header" {
		t.Fatalf("error reason = %q", got.ErrorReason)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}

	// error -> processing is the retry edge.
	if err := store.MarkProcessing(ctx, m.ID); err != nil {
		t.Fatalf("MarkProcessing after error: %v", err)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	m := testsupport.NewTrack(t, store, "stuck")
	if err := store.MarkProcessing(ctx, m.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset %d manifests, want 1", reset)
	}
	got, err := store.GetByID(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != manifest.StatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
}

func TestStatsAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewTrack(t, store, "a")
	testsupport.NewTrack(t, store, "b")
	if err := store.MarkProcessing(ctx, a.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Queued != 1 || stats.Processing != 1 || stats.Total() != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	queued, err := store.List(ctx, manifest.StatusQueued)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("listed %d queued manifests, want 1", len(queued))
	}
}

func TestHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health := store.Health(context.Background())
	if !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.SchemaVersion != "1" {
		t.Fatalf("schema version = %q, want 1", health.SchemaVersion)
	}
}

func TestCanTransitionTable(t *testing.T) {
	legal := map[[2]manifest.Status]bool{
		{manifest.StatusQueued, manifest.StatusProcessing}:    true,
		{manifest.StatusProcessing, manifest.StatusReady}:     true,
		{manifest.StatusProcessing, manifest.StatusError}:     true,
		{manifest.StatusError, manifest.StatusProcessing}:     true,
		{manifest.StatusQueued, manifest.StatusReady}:         false,
		{manifest.StatusQueued, manifest.StatusError}:         false,
		{manifest.StatusReady, manifest.StatusProcessing}:     false,
		{manifest.StatusReady, manifest.StatusError}:          false,
		{manifest.StatusError, manifest.StatusReady}:          false,
		{manifest.StatusProcessing, manifest.StatusQueued}:    false,
		{manifest.StatusError, manifest.StatusQueued}:         false,
		{manifest.StatusProcessing, manifest.StatusProcessing}: false,
	}
	for edge, want := range legal {
		if got := manifest.CanTransition(edge[0], edge[1]); got != want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", edge[0], edge[1], got, want)
		}
	}
}
