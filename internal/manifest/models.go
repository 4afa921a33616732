package manifest

import (
	"strings"
	"time"

	"segue/internal/features"
)

// Status represents the lifecycle of a track manifest.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusReady,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether the state machine permits from -> to.
// The only path back out of error is processing, taken by the retry loop.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusReady || to == StatusError
	case StatusError:
		return to == StatusProcessing
	default:
		return false
	}
}

// Terminal reports whether a status ends the lifecycle. Error is terminal
// once retries are exhausted; ready is always terminal.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Manifest is the persisted record tracking a track's ingestion and analysis
// state. It is owned by the worker and mutated only through store transitions.
type Manifest struct {
	ID            string
	Artist        string
	Title         string
	FileSize      int64
	Digest        string
	SourcePath    string
	Status        Status
	Summary       *features.Summary
	ErrorReason   string
	RetryCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// Ready reports whether analysis artifacts are attached and final.
func (m *Manifest) Ready() bool {
	return m.Status == StatusReady
}

// Stats aggregates manifest counts per lifecycle state.
type Stats struct {
	Queued     int
	Processing int
	Ready      int
	Errored    int
}

// Total returns the number of manifests across all states.
func (s Stats) Total() int {
	return s.Queued + s.Processing + s.Ready + s.Errored
}

// DatabaseHealth captures diagnostic information about the manifest database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	IntegrityCheck   bool
	TotalTracks      int
	Error            string
}
