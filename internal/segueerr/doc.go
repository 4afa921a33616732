// Package segueerr defines the error kinds shared across the engine and the
// wrapping helpers that tag failures for logging and manifest reporting.
package segueerr
