package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"segue/internal/jobs"
	"segue/internal/logging"
	"segue/internal/segueerr"
	"segue/internal/testsupport"
)

func newTestQueue(t *testing.T, workers int) (*jobs.Queue, *jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJobStore(t, cfg)
	queue := jobs.NewQueue(store, workers, 10*time.Millisecond, logging.NewNop(),
		jobs.WithRetryDelay(func(int) time.Duration { return 0 }))
	return queue, store
}

func TestPublishAndDrain(t *testing.T) {
	queue, store := newTestQueue(t, 1)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	if err := queue.On("analyze_track", func(ctx context.Context, job *jobs.Job) error {
		var payload struct {
			TrackID string `json:"track_id"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, payload.TrackID)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("On: %v", err)
	}

	id, err := queue.Publish(ctx, "analyze_track", "track-1", map[string]string{"track_id": "track-1"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if id == "" {
		t.Fatal("expected job id")
	}

	if err := queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(seen) != 1 || seen[0] != "track-1" {
		t.Fatalf("handler saw %v", seen)
	}

	job, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != jobs.StatusDone {
		t.Fatalf("job status = %s, want done", job.Status)
	}
}

func TestOnRejectsSecondHandler(t *testing.T) {
	queue, _ := newTestQueue(t, 1)
	nop := func(context.Context, *jobs.Job) error { return nil }
	if err := queue.On("analyze_track", nop); err != nil {
		t.Fatalf("first On: %v", err)
	}
	if err := queue.On("analyze_track", nop); err == nil {
		t.Fatal("expected error registering second handler")
	}
}

func TestRetryBoundThreeFailures(t *testing.T) {
	queue, store := newTestQueue(t, 1)
	ctx := context.Background()

	attempts := 0
	if err := queue.On("analyze_track", func(context.Context, *jobs.Job) error {
		attempts++
		return errors.New("decode failed")
	}); err != nil {
		t.Fatalf("On: %v", err)
	}

	id, err := queue.Publish(ctx, "analyze_track", "track-1", nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if attempts != jobs.MaxAttempts {
		t.Fatalf("handler ran %d times, want %d", attempts, jobs.MaxAttempts)
	}
	job, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if job.LastError == "" {
		t.Fatal("expected terminal error recorded")
	}
}

func TestRetryThenSuccess(t *testing.T) {
	queue, store := newTestQueue(t, 1)
	ctx := context.Background()

	attempts := 0
	if err := queue.On("analyze_track", func(context.Context, *jobs.Job) error {
		attempts++
		if attempts <= 2 {
			return errors.New("transient failure")
		}
		return nil
	}); err != nil {
		t.Fatalf("On: %v", err)
	}

	id, err := queue.Publish(ctx, "analyze_track", "track-1", nil)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if attempts != 3 {
		t.Fatalf("handler ran %d times, want 3", attempts)
	}
	job, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != jobs.StatusDone {
		t.Fatalf("job status = %s, want done", job.Status)
	}
}

func TestPerTrackPublishOrder(t *testing.T) {
	queue, _ := newTestQueue(t, 4)
	ctx := context.Background()

	var mu sync.Mutex
	order := map[string][]int{}
	if err := queue.On("analyze_track", func(ctx context.Context, job *jobs.Job) error {
		var payload struct {
			Track string `json:"track"`
			Seq   int    `json:"seq"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		mu.Lock()
		order[payload.Track] = append(order[payload.Track], payload.Seq)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("On: %v", err)
	}

	tracks := []string{"alpha", "beta", "gamma"}
	for seq := 0; seq < 5; seq++ {
		for _, track := range tracks {
			payload := map[string]any{"track": track, "seq": seq}
			if _, err := queue.Publish(ctx, "analyze_track", track, payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
		}
	}

	if err := queue.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	for _, track := range tracks {
		got := order[track]
		if len(got) != 5 {
			t.Fatalf("track %s ran %d jobs, want 5", track, len(got))
		}
		for i, seq := range got {
			if seq != i {
				t.Fatalf("track %s executed out of order: %v", track, got)
			}
		}
	}
}

func TestStatsAndStuckReset(t *testing.T) {
	queue, store := newTestQueue(t, 1)
	ctx := context.Background()

	if _, err := queue.Publish(ctx, "analyze_track", "track-1", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := queue.Publish(ctx, "analyze_track", "track-2", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stats, err := queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 2 || stats.Processing != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if reset, err := store.ResetStuckProcessing(ctx); err != nil || reset != 0 {
		t.Fatalf("ResetStuckProcessing = (%d, %v), want (0, nil)", reset, err)
	}
}

func TestPublishMarshalFailure(t *testing.T) {
	queue, _ := newTestQueue(t, 1)
	_, err := queue.Publish(context.Background(), "analyze_track", "track-1", make(chan int))
	if !segueerr.IsKind(err, segueerr.KindQueuePublish) {
		t.Fatalf("expected queue_publish error, got %v", err)
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
	}
	for _, tc := range cases {
		if got := jobs.RetryDelay(tc.retryCount); got != tc.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}
