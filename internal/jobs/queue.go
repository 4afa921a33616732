package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"segue/internal/logging"
	"segue/internal/segueerr"
)

// Queue dispatches persisted jobs to registered handlers. Worker slot i only
// claims jobs whose partition hashes to slot i, so jobs sharing a partition
// key run on one goroutine in publish order while distinct keys proceed in
// parallel.
type Queue struct {
	store        *Store
	logger       *slog.Logger
	pollInterval time.Duration
	workers      int

	retryDelay func(int) time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// QueueOption configures optional Queue behavior.
type QueueOption func(*Queue)

// WithRetryDelay overrides the backoff schedule. Used by tests to avoid
// real-time waits.
func WithRetryDelay(fn func(retryCount int) time.Duration) QueueOption {
	return func(q *Queue) {
		q.retryDelay = fn
	}
}

// NewQueue constructs a queue over the given store.
func NewQueue(store *Store, workers int, pollInterval time.Duration, logger *slog.Logger, opts ...QueueOption) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	q := &Queue{
		store:        store,
		logger:       logging.NewComponentLogger(logger, "job-queue"),
		pollInterval: pollInterval,
		workers:      workers,
		handlers:     make(map[string]Handler),
		retryDelay:   RetryDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// On registers the handler for a job type. Exactly one handler is permitted
// per type.
func (q *Queue) On(jobType string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for job type %q", jobType)
	}
	if handler == nil {
		return fmt.Errorf("nil handler for job type %q", jobType)
	}
	q.handlers[jobType] = handler
	return nil
}

// Publish enqueues a job and returns its id without waiting for execution.
func (q *Queue) Publish(ctx context.Context, jobType, partitionKey string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", segueerr.Wrap(segueerr.KindQueuePublish, "publish "+jobType, err)
	}
	job := &Job{
		ID:           uuid.NewString(),
		Type:         jobType,
		PartitionKey: partitionKey,
		Payload:      data,
	}
	if err := q.store.insert(ctx, job); err != nil {
		return "", segueerr.Wrap(segueerr.KindQueuePublish, "publish "+jobType, err)
	}
	q.logger.Debug("job published",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, jobType),
		logging.String(logging.FieldTrackID, partitionKey),
	)
	return job.ID, nil
}

// Stats reports current queue depth.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx)
}

// Start launches the worker goroutines.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}
	if len(q.handlers) == 0 {
		return errors.New("no job handlers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true
	q.wg.Add(q.workers)
	for slot := 0; slot < q.workers; slot++ {
		go q.runWorker(runCtx, slot)
	}
	return nil
}

// Stop terminates the workers and waits for in-flight handlers to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	cancel := q.cancel
	q.running = false
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
}

// Drain synchronously processes eligible jobs until the queue is empty or ctx
// is done. Used by tests and the one-shot CLI path; the daemon uses Start.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		claimed := false
		for slot := 0; slot < q.workers; slot++ {
			job, err := q.store.claimNext(ctx, q.workers, slot)
			if err != nil {
				return err
			}
			if job == nil {
				continue
			}
			claimed = true
			q.dispatch(ctx, job)
		}
		if !claimed {
			stats, err := q.store.Stats(ctx)
			if err != nil {
				return err
			}
			if stats.Pending == 0 && stats.Processing == 0 {
				return nil
			}
			// Remaining jobs are backing off; wait for the earliest one.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

func (q *Queue) runWorker(ctx context.Context, slot int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.store.claimNext(ctx, q.workers, slot)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			q.logger.Error("claim failed", logging.Int("slot", slot), logging.Error(err))
			q.sleep(ctx)
			continue
		}
		if job == nil {
			q.sleep(ctx)
			continue
		}
		q.dispatch(ctx, job)
	}
}

func (q *Queue) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(q.pollInterval):
	}
}

func (q *Queue) dispatch(ctx context.Context, job *Job) {
	q.mu.Lock()
	handler := q.handlers[job.Type]
	q.mu.Unlock()

	logger := q.logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, job.Type),
		logging.String(logging.FieldTrackID, job.PartitionKey),
	)

	if handler == nil {
		logger.Error("no handler for job type")
		if err := q.store.fail(ctx, job.ID, job.RetryCount, "no handler registered"); err != nil {
			logger.Error("persist handler-missing failure", logging.Error(err))
		}
		return
	}

	err := handler(ctx, job)
	if err == nil {
		if err := q.store.complete(ctx, job.ID); err != nil {
			logger.Error("persist completion", logging.Error(err))
		}
		logger.Debug("job completed", logging.Int("attempts", job.RetryCount+1))
		return
	}

	failures := job.RetryCount + 1
	if failures >= MaxAttempts {
		reason := segueerr.Wrap(segueerr.KindRetryExhausted, "job "+job.Type, err)
		logger.Error("job failed terminally",
			logging.Int("attempts", failures),
			logging.String(logging.FieldErrorKind, string(segueerr.KindOf(err))),
			logging.Error(err),
		)
		if persistErr := q.store.fail(ctx, job.ID, failures, reason.Error()); persistErr != nil {
			logger.Error("persist terminal failure", logging.Error(persistErr))
		}
		return
	}

	delay := q.retryDelay(job.RetryCount)
	logger.Warn("job failed, scheduling retry",
		logging.Int("attempt", failures),
		logging.Duration("backoff", delay),
		logging.String(logging.FieldErrorKind, string(segueerr.KindOf(err))),
		logging.Error(err),
	)
	if persistErr := q.store.scheduleRetry(ctx, job.ID, failures, time.Now().UTC().Add(delay), err.Error()); persistErr != nil {
		logger.Error("persist retry", logging.Error(persistErr))
	}
}
