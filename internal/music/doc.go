// Package music provides Camelot wheel key notation used for harmonic
// compatibility reasoning between tracks.
package music
