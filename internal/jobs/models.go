package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Status represents the lifecycle of a queued job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// MaxAttempts bounds how many times a job handler runs before the job is
// terminal: a job failing three consecutive times is not tried a fourth.
const MaxAttempts = 3

// Job is one unit of queued work.
type Job struct {
	ID           string
	Type         string
	PartitionKey string
	Payload      json.RawMessage
	Status       Status
	RetryCount   int
	LastError    string
	NotBefore    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Handler processes one job. A nil return completes the job; an error
// schedules a retry until attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// Stats reports queue depth for observability.
type Stats struct {
	Pending    int
	Processing int
}

// RetryDelay returns the backoff before the next attempt given the number of
// completed failed attempts.
func RetryDelay(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Second
}
