// Package manifest persists track manifests in SQLite and enforces the
// analysis state machine: queued -> processing -> {ready, error}, with
// error -> processing permitted only through the retry path.
package manifest
