package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"segue/internal/segueerr"
)

const dirLockRetryDelay = 25 * time.Millisecond

// DirStore is a Repository backed by a local directory: one subdirectory per
// trackId holding the four artifact objects. Writers stage into a temp
// directory and rename it into place under a per-track flock, so readers never
// observe a partially written artifact set.
type DirStore struct {
	root string
}

// NewDirStore creates the root directory if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create feature store root: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) trackDir(trackID string) string {
	return filepath.Join(s.root, trackID)
}

func (s *DirStore) lockPath(trackID string) string {
	return filepath.Join(s.root, trackID+".lock")
}

// Save implements Repository.
func (s *DirStore) Save(ctx context.Context, trackID string, set *FeatureSet, summary *Summary) error {
	if err := set.Validate(summary); err != nil {
		return fmt.Errorf("save features %s: %w", trackID, err)
	}

	objects, err := encodeObjects(set, summary)
	if err != nil {
		return fmt.Errorf("save features %s: %w", trackID, err)
	}

	staging, err := os.MkdirTemp(s.root, trackID+".tmp-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	for name, data := range objects {
		if err := os.WriteFile(filepath.Join(staging, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	lock := flock.New(s.lockPath(trackID))
	locked, err := lock.TryLockContext(ctx, dirLockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock track %s: %w", trackID, err)
	}
	if !locked {
		return fmt.Errorf("lock track %s: not acquired", trackID)
	}
	defer lock.Unlock()

	final := s.trackDir(trackID)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("clear previous features: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("publish features: %w", err)
	}
	return nil
}

// Load implements Repository.
func (s *DirStore) Load(ctx context.Context, trackID string) (*FeatureSet, *Summary, error) {
	dir := s.trackDir(trackID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, segueerr.New(segueerr.KindNotFound, "load features", "track %s has no stored features", trackID)
		}
		return nil, nil, fmt.Errorf("stat features %s: %w", trackID, err)
	}

	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}

	summaryData, err := read(objectSummary)
	if err != nil {
		return nil, nil, err
	}
	barData, err := read(objectBarVectors)
	if err != nil {
		return nil, nil, err
	}
	phraseData, err := read(objectPhraseVectors)
	if err != nil {
		return nil, nil, err
	}
	waveformData, err := read(objectWaveform)
	if err != nil {
		return nil, nil, err
	}

	return decodeObjects(trackID, summaryData, barData, phraseData, waveformData)
}

// Exists implements Repository.
func (s *DirStore) Exists(ctx context.Context, trackID string) (bool, error) {
	if _, err := os.Stat(filepath.Join(s.trackDir(trackID), objectSummary)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat features %s: %w", trackID, err)
	}
	return true, nil
}

func encodeObjects(set *FeatureSet, summary *Summary) (map[string][]byte, error) {
	summary.KeyToken = summary.Key.String()
	summaryData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	barData, err := EncodeVectors(set.BarVectors, BarDim)
	if err != nil {
		return nil, err
	}
	phraseData, err := EncodeVectors(set.PhraseVectors, PhraseDim)
	if err != nil {
		return nil, err
	}
	waveformData, err := EncodeWaveform(set.Waveform)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		objectSummary:       summaryData,
		objectBarVectors:    barData,
		objectPhraseVectors: phraseData,
		objectWaveform:      waveformData,
	}, nil
}

func decodeObjects(trackID string, summaryData, barData, phraseData, waveformData []byte) (*FeatureSet, *Summary, error) {
	var summary Summary
	if err := json.Unmarshal(summaryData, &summary); err != nil {
		return nil, nil, fmt.Errorf("unmarshal summary %s: %w", trackID, err)
	}
	if err := summary.NormalizeKey(); err != nil {
		return nil, nil, fmt.Errorf("summary %s: %w", trackID, err)
	}
	barVectors, err := DecodeVectors(barData, BarDim)
	if err != nil {
		return nil, nil, fmt.Errorf("bar vectors %s: %w", trackID, err)
	}
	phraseVectors, err := DecodeVectors(phraseData, PhraseDim)
	if err != nil {
		return nil, nil, fmt.Errorf("phrase vectors %s: %w", trackID, err)
	}
	waveform, err := DecodeWaveform(waveformData, EnvelopeLength)
	if err != nil {
		return nil, nil, fmt.Errorf("waveform %s: %w", trackID, err)
	}

	set := &FeatureSet{
		Waveform:      waveform,
		BarVectors:    barVectors,
		PhraseVectors: phraseVectors,
	}
	if err := set.Validate(&summary); err != nil {
		return nil, nil, fmt.Errorf("stored features %s: %w", trackID, err)
	}
	return set, &summary, nil
}
