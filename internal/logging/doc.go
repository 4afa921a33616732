// Package logging constructs the slog loggers used throughout segue and
// provides the attribute helpers shared by all components.
package logging
