package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"segue/internal/config"
	"segue/internal/features"
	"segue/internal/segueerr"
)

// Store manages manifest persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// ErrInvalidTransition is returned when a status change violates the state machine.
var ErrInvalidTransition = errors.New("invalid manifest transition")

// Open initializes or connects to the manifest database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
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

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const manifestColumns = `id, artist, title, file_size, digest, source_path, status,
    summary_json, error_reason, retry_count, created_at, updated_at, last_heartbeat`

// Create inserts a new manifest in the queued state. A digest collision with
// an existing manifest is reported as a duplicate_track error.
func (s *Store) Create(ctx context.Context, m *Manifest) (*Manifest, error) {
	if strings.TrimSpace(m.ID) == "" {
		return nil, errors.New("manifest id required")
	}
	if strings.TrimSpace(m.Digest) == "" {
		return nil, errors.New("manifest digest required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO tracks (
            id, artist, title, file_size, digest, source_path, status,
            retry_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		m.ID, m.Artist, m.Title, m.FileSize, m.Digest, m.SourcePath,
		StatusQueued, timestamp, timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, segueerr.New(segueerr.KindDuplicateTrack, "create manifest",
				"track with digest %s already ingested", m.Digest)
		}
		return nil, fmt.Errorf("insert manifest: %w", err)
	}
	return s.GetByID(ctx, m.ID)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: tracks")
}

// GetByID fetches one manifest, or a not_found error.
func (s *Store) GetByID(ctx context.Context, id string) (*Manifest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+manifestColumns+` FROM tracks WHERE id = ?`, id)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, segueerr.New(segueerr.KindNotFound, "get manifest", "track %s not found", id)
	}
	return m, err
}

// FindByDigest returns the manifest with the given content digest, or nil.
func (s *Store) FindByDigest(ctx context.Context, digest string) (*Manifest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+manifestColumns+` FROM tracks WHERE digest = ?`, digest)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns manifests ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Manifest, error) {
	query := `SELECT ` + manifestColumns + ` FROM tracks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	defer rows.Close()

	var manifests []*Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, rows.Err()
}

// MarkProcessing claims a manifest for analysis. The compare-and-swap against
// the current status keeps a second claimer (ingest race, stale retry) out.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET status = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusProcessing, now, now, id, StatusQueued, StatusError,
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return s.requireTransition(ctx, res, id, StatusProcessing)
}

// MarkReady attaches the summary and finalizes the manifest. Ready is
// terminal and idempotent at the worker level.
func (s *Store) MarkReady(ctx context.Context, id string, summary *features.Summary) error {
	summary.KeyToken = summary.Key.String()
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET status = ?, summary_json = ?, error_reason = NULL,
            updated_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusReady, string(summaryJSON), now, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return s.requireTransition(ctx, res, id, StatusReady)
}

// MarkError records a failure reason and the attempt count that produced it.
func (s *Store) MarkError(ctx context.Context, id, reason string, retryCount int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET status = ?, error_reason = ?, retry_count = ?,
            updated_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusError, reason, retryCount, now, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return s.requireTransition(ctx, res, id, StatusError)
}

func (s *Store) requireTransition(ctx context.Context, res sql.Result, id string, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}
	current, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: %s -> %s for track %s", ErrInvalidTransition, current.Status, to, id)
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight manifest.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ResetStuckProcessing returns manifests stranded in processing (for example
// after a crash) back to queued so the worker picks them up again.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET status = ?, updated_at = ?, last_heartbeat = NULL
         WHERE status = ?`,
		StatusQueued, now, StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck manifests: %w", err)
	}
	return res.RowsAffected()
}

// RetryErrored moves errored manifests back to queued for manual resubmission.
func (s *Store) RetryErrored(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE tracks SET status = ?, error_reason = NULL, retry_count = 0, updated_at = ?
             WHERE status = ?`,
			StatusQueued, now, StatusError,
		)
		if err != nil {
			return 0, fmt.Errorf("retry errored manifests: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := make([]string, len(ids))
	args := []any{StatusQueued, now}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, StatusError)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tracks SET status = ?, error_reason = NULL, retry_count = 0, updated_at = ?
         WHERE id IN (`+strings.Join(placeholders, ", ")+`) AND status = ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected manifests: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes manifests, optionally limited to the given statuses.
func (s *Store) Clear(ctx context.Context, statuses ...Status) (int64, error) {
	query := `DELETE FROM tracks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear manifests: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates manifest counts per lifecycle state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM tracks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("manifest stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch status {
		case StatusQueued:
			stats.Queued = count
		case StatusProcessing:
			stats.Processing = count
		case StatusReady:
			stats.Ready = count
		case StatusError:
			stats.Errored = count
		}
	}
	return stats, rows.Err()
}

// Health captures diagnostic information about the manifest database.
func (s *Store) Health(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{DBPath: s.path, DatabaseExists: true}

	var version int
	if err := s.db.QueryRowContext(ensureContext(ctx),
		"PRAGMA user_version").Scan(&version); err != nil {
		health.Error = fmt.Sprintf("read schema version: %v", err)
		return health
	}
	health.DatabaseReadable = true
	health.SchemaVersion = fmt.Sprintf("%d", version)

	var integrity string
	if err := s.db.QueryRowContext(ensureContext(ctx), "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"

	if err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM tracks").Scan(&health.TotalTracks); err != nil {
		health.Error = fmt.Sprintf("count tracks: %v", err)
	}
	return health
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanManifest(row rowScanner) (*Manifest, error) {
	var (
		m           Manifest
		summaryJSON sql.NullString
		errorReason sql.NullString
		createdAt   string
		updatedAt   string
		heartbeat   sql.NullString
	)
	err := row.Scan(
		&m.ID, &m.Artist, &m.Title, &m.FileSize, &m.Digest, &m.SourcePath, &m.Status,
		&summaryJSON, &errorReason, &m.RetryCount, &createdAt, &updatedAt, &heartbeat,
	)
	if err != nil {
		return nil, err
	}

	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary features.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary for %s: %w", m.ID, err)
		}
		if err := summary.NormalizeKey(); err != nil {
			return nil, fmt.Errorf("summary key for %s: %w", m.ID, err)
		}
		m.Summary = &summary
	}
	if errorReason.Valid {
		m.ErrorReason = errorReason.String
	}
	if m.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("created_at for %s: %w", m.ID, err)
	}
	if m.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("updated_at for %s: %w", m.ID, err)
	}
	if heartbeat.Valid && heartbeat.String != "" {
		hb, err := parseTimestamp(heartbeat.String)
		if err != nil {
			return nil, fmt.Errorf("last_heartbeat for %s: %w", m.ID, err)
		}
		m.LastHeartbeat = &hb
	}
	return &m, nil
}

func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
