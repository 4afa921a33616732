// Package ingest handles the upload path: digesting the audio bytes, creating
// the queued manifest, stashing the bytes for the worker, and publishing the
// analysis job.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"segue/internal/config"
	"segue/internal/jobs"
	"segue/internal/logging"
	"segue/internal/manifest"
	"segue/internal/segueerr"
)

// JobTypeAnalyzeTrack is the queue job type consumed by the analysis worker.
const JobTypeAnalyzeTrack = "analyze_track"

// trackIDLength is the number of digest hex characters used as the track id.
const trackIDLength = 16

// AnalyzePayload is the analyze_track job payload.
type AnalyzePayload struct {
	TrackID   string `json:"track_id"`
	AudioPath string `json:"audio_path"`
}

// Upload is one incoming audio file with optional declared metadata.
type Upload struct {
	Data   []byte
	Artist string
	Title  string
}

// Result reports the created manifest and its queued analysis job.
type Result struct {
	Manifest *manifest.Manifest
	JobID    string
}

// Ingestor runs uploads through dedup, manifest creation, and job publish.
type Ingestor struct {
	cfg    *config.Config
	store  *manifest.Store
	queue  *jobs.Queue
	logger *slog.Logger
}

func New(cfg *config.Config, store *manifest.Store, queue *jobs.Queue, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingestor{cfg: cfg, store: store, queue: queue, logger: logger}
}

// TrackID derives the content-addressed track id from upload bytes: the first
// 16 hex characters of the SHA-256 digest. Identical bytes always map to the
// same id, regardless of declared metadata.
func TrackID(data []byte) (id, digest string) {
	sum := sha256.Sum256(data)
	digest = hex.EncodeToString(sum[:])
	return digest[:trackIDLength], digest
}

// Ingest registers an upload and queues it for analysis. It returns
// immediately with the queued manifest; a byte-identical re-upload fails with
// a duplicate-track error naming the existing id.
func (i *Ingestor) Ingest(ctx context.Context, upload Upload) (*Result, error) {
	const op = "ingest upload"
	if len(upload.Data) == 0 {
		return nil, segueerr.New(segueerr.KindExtraction, op, "empty upload")
	}

	id, digest := TrackID(upload.Data)
	audioPath, err := i.stashAudio(id, upload.Data)
	if err != nil {
		return nil, segueerr.Wrap(segueerr.KindExtraction, op, err)
	}

	created, err := i.store.Create(ctx, &manifest.Manifest{
		ID:         id,
		Artist:     normalizeMeta(upload.Artist),
		Title:      normalizeMeta(upload.Title),
		FileSize:   int64(len(upload.Data)),
		Digest:     digest,
		SourcePath: audioPath,
		Status:     manifest.StatusQueued,
	})
	if err != nil {
		return nil, err
	}

	jobID, err := i.queue.Publish(ctx, JobTypeAnalyzeTrack, id, AnalyzePayload{
		TrackID:   id,
		AudioPath: audioPath,
	})
	if err != nil {
		return nil, err
	}

	i.logger.Info("track queued for analysis",
		logging.String(logging.FieldTrackID, id),
		logging.String(logging.FieldJobID, jobID),
		logging.Int64("bytes", created.FileSize),
	)
	return &Result{Manifest: created, JobID: jobID}, nil
}

// stashAudio writes the upload where the worker can read it later, staging
// through a temp file so a partial write is never observed.
func (i *Ingestor) stashAudio(id string, data []byte) (string, error) {
	dir := filepath.Join(i.cfg.Paths.DataDir, "audio")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(dir, id+".audio")
	tmp, err := os.CreateTemp(dir, id+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close audio: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish audio: %w", err)
	}
	return path, nil
}

func normalizeMeta(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
