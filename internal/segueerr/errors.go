package segueerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for logging and manifest error reporting.
type Kind string

const (
	KindDecode            Kind = "decode"
	KindExtraction        Kind = "extraction"
	KindExtractionTimeout Kind = "extraction_timeout"
	KindMissingFeature    Kind = "missing_feature"
	KindDimensionMismatch Kind = "dimension_mismatch"
	KindNotFound          Kind = "not_found"
	KindDuplicateTrack    Kind = "duplicate_track"
	KindQueuePublish      Kind = "queue_publish"
	KindRetryExhausted    Kind = "retry_exhausted"
	KindUnknown           Kind = "unknown"
)

// Error carries a kind, the failing operation, and an optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	if len(parts) == 0 {
		return string(e.Kind)
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error without a cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and operation context. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from anywhere in the error chain, or KindUnknown.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
