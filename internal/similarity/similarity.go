// Package similarity implements vector comparison and linear-scan
// nearest-neighbor search over a track corpus.
package similarity

import (
	"math"

	"segue/internal/segueerr"
)

// Cosine returns the cosine similarity of two equal-length vectors in [-1,1].
// A zero vector on either side yields 0 rather than NaN.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, segueerr.New(segueerr.KindDimensionMismatch, "cosine similarity",
			"vector dimensions %d and %d differ", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
