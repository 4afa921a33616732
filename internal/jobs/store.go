package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"segue/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Store persists jobs in SQLite, separate from the manifest database so queue
// churn never contends with manifest reads.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the job database.
func OpenStore(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open job db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create job schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func partitionOf(key string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum32())
}

func (s *Store) insert(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (
            id, job_type, partition_key, partition, payload, status,
            retry_count, not_before, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		job.ID, job.Type, job.PartitionKey, partitionOf(job.PartitionKey),
		string(job.Payload), StatusPending,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, job_type, partition_key, payload, status, retry_count,
    last_error, not_before, created_at, updated_at`

// claimNext atomically claims the oldest eligible pending job for the given
// worker partition slot. A job is eligible when its backoff has elapsed and no
// earlier live job exists for the same partition key, which preserves publish
// order per track and per-key mutual exclusion.
func (s *Store) claimNext(ctx context.Context, workers, slot int) (*Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?
         WHERE id = (
            SELECT j.id FROM jobs j
            WHERE j.status = ?
              AND j.not_before <= ?
              AND (j.partition % ?) = ?
              AND NOT EXISTS (
                SELECT 1 FROM jobs p
                WHERE p.partition_key = j.partition_key
                  AND p.status IN (?, ?)
                  AND p.seq < j.seq
              )
            ORDER BY j.seq ASC
            LIMIT 1
         ) AND status = ?`,
		StatusProcessing, now,
		StatusPending, now, workers, slot,
		StatusPending, StatusProcessing,
		StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	// The claim above moved exactly one row for this slot into processing.
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND (partition % ?) = ?
         ORDER BY updated_at DESC LIMIT 1`,
		StatusProcessing, workers, slot,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *Store) complete(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		StatusDone, now, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (s *Store) scheduleRetry(ctx context.Context, id string, retryCount int, notBefore time.Time, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, retry_count = ?, last_error = ?, not_before = ?, updated_at = ?
         WHERE id = ?`,
		StatusPending, retryCount, lastError, notBefore.UTC().Format(time.RFC3339Nano), now, id)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

func (s *Store) fail(ctx context.Context, id string, retryCount int, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, retry_count = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, retryCount, lastError, now, id)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// ResetStuckProcessing returns jobs stranded in processing back to pending,
// used on daemon start after an unclean shutdown.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?`,
		StatusPending, now, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetByID fetches one job.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Stats reports pending and processing counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan job stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job       Job
		payload   string
		lastError sql.NullString
		notBefore string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&job.ID, &job.Type, &job.PartitionKey, &payload, &job.Status,
		&job.RetryCount, &lastError, &notBefore, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Payload = []byte(payload)
	if lastError.Valid {
		job.LastError = lastError.String
	}
	if job.NotBefore, err = time.Parse(time.RFC3339Nano, notBefore); err != nil {
		return nil, fmt.Errorf("not_before for %s: %w", job.ID, err)
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("created_at for %s: %w", job.ID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at for %s: %w", job.ID, err)
	}
	return &job, nil
}
