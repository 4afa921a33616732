package worker_test

import (
	"context"
	"testing"
	"time"

	"segue/internal/analysis"
	"segue/internal/features"
	"segue/internal/ingest"
	"segue/internal/jobs"
	"segue/internal/logging"
	"segue/internal/manifest"
	"segue/internal/segueerr"
	"segue/internal/testsupport"
	"segue/internal/worker"
)

type harness struct {
	store    *manifest.Store
	queue    *jobs.Queue
	jobStore *jobs.Store
	ingestor *ingest.Ingestor
	repo     *features.DirStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	jobStore := testsupport.MustOpenJobStore(t, cfg)
	repo := testsupport.MustOpenRepository(t, cfg)

	queue := jobs.NewQueue(jobStore, 1, 10*time.Millisecond, logging.NewNop(),
		jobs.WithRetryDelay(func(int) time.Duration { return 0 }))
	extractor := analysis.NewExtractor(analysis.NewWAVDecoder(), 30*time.Second, nil)
	analyzer := worker.NewAnalyzer(store, repo, extractor, nil)
	if err := analyzer.Register(queue); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return &harness{
		store:    store,
		queue:    queue,
		jobStore: jobStore,
		ingestor: ingest.New(cfg, store, queue, nil),
		repo:     repo,
	}
}

func musicClip(t *testing.T) []byte {
	t.Helper()
	samples := testsupport.ChordPulses(t, []float64{261.63, 329.63, 392.00}, 120, 12, analysis.TargetSampleRate)
	return testsupport.WAVBytes(t, samples, analysis.TargetSampleRate, 1)
}

func TestAnalyzeHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.ingestor.Ingest(ctx, ingest.Upload{Data: musicClip(t), Artist: "Test", Title: "Clip"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Manifest.Status != manifest.StatusQueued {
		t.Fatalf("status after ingest = %s, want queued", result.Manifest.Status)
	}

	if err := h.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	m, err := h.store.GetByID(ctx, result.Manifest.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if m.Status != manifest.StatusReady {
		t.Fatalf("status = %s (reason %q), want ready", m.Status, m.ErrorReason)
	}
	if m.Summary == nil || m.Summary.KeyToken == "" {
		t.Fatal("ready manifest missing summary")
	}

	set, summary, err := h.repo.Load(ctx, m.ID)
	if err != nil {
		t.Fatalf("repository Load: %v", err)
	}
	if err := set.Validate(summary); err != nil {
		t.Fatalf("stored features invalid: %v", err)
	}
}

func TestAnalyzeIdempotentOnReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.ingestor.Ingest(ctx, ingest.Upload{Data: musicClip(t)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := h.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	before, err := h.store.GetByID(ctx, result.Manifest.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if before.Status != manifest.StatusReady {
		t.Fatalf("status = %s, want ready", before.Status)
	}

	// A second job for a ready manifest is a no-op.
	payload := ingest.AnalyzePayload{TrackID: result.Manifest.ID, AudioPath: before.SourcePath}
	if _, err := h.queue.Publish(ctx, ingest.JobTypeAnalyzeTrack, result.Manifest.ID, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := h.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	after, err := h.store.GetByID(ctx, result.Manifest.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Status != manifest.StatusReady {
		t.Fatalf("status changed to %s", after.Status)
	}
	if after.RetryCount != before.RetryCount {
		t.Fatalf("retry count changed: %d -> %d", before.RetryCount, after.RetryCount)
	}
	if *after.Summary != *before.Summary {
		t.Fatalf("summary changed: %+v -> %+v", before.Summary, after.Summary)
	}
}

func TestAnalyzeFailureExhaustsRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.ingestor.Ingest(ctx, ingest.Upload{Data: []byte("not an audio container at all")})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if err := h.queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	m, err := h.store.GetByID(ctx, result.Manifest.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if m.Status != manifest.StatusError {
		t.Fatalf("status = %s, want error", m.Status)
	}
	if m.ErrorReason == "" {
		t.Fatal("terminal manifest missing error reason")
	}
	if m.RetryCount != jobs.MaxAttempts {
		t.Fatalf("retry count = %d, want %d", m.RetryCount, jobs.MaxAttempts)
	}

	job, err := h.jobStore.GetByID(ctx, result.JobID)
	if err != nil {
		t.Fatalf("job GetByID: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
}

func TestIngestDuplicateUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	clip := musicClip(t)

	first, err := h.ingestor.Ingest(ctx, ingest.Upload{Data: clip, Artist: "A"})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	// Different declared metadata, identical bytes: same id, duplicate error.
	_, err = h.ingestor.Ingest(ctx, ingest.Upload{Data: clip, Artist: "B"})
	if !segueerr.IsKind(err, segueerr.KindDuplicateTrack) {
		t.Fatalf("expected duplicate-track error, got %v", err)
	}

	id, digest := ingest.TrackID(clip)
	if first.Manifest.ID != id || first.Manifest.Digest != digest {
		t.Fatalf("manifest id/digest mismatch: %s / %s", first.Manifest.ID, first.Manifest.Digest)
	}
}
