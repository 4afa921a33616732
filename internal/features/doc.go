// Package features defines the per-track analysis artifacts (summary and
// fixed-dimension feature vectors) and the repositories that persist them.
package features
