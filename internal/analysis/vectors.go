package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"segue/internal/features"
)

const (
	beatsPerBar   = 4
	barsPerPhrase = 8

	// Bar vector layout: 4 window statistics followed by raw envelope samples.
	barStatsLen   = 4
	barSamplesLen = features.BarDim - barStatsLen
)

// BarCount derives the number of 4-beat bars in a clip, floored at 1.
func BarCount(durationSeconds, bpm float64) int {
	bars := int(durationSeconds / 60 * bpm / beatsPerBar)
	if bars < 1 {
		return 1
	}
	return bars
}

// PhraseCount derives the number of 8-bar phrases, floored at 1.
func PhraseCount(bars int) int {
	phrases := bars / barsPerPhrase
	if phrases < 1 {
		return 1
	}
	return phrases
}

// BarVectors partitions the envelope into bar windows and packs each into a
// fixed 128-dim vector: {RMS, peak, mean, variance} then the window's raw
// samples, zero-padded or truncated to fit.
func BarVectors(envelope []float32, bars int) [][]float32 {
	vectors := make([][]float32, bars)
	for i := 0; i < bars; i++ {
		start := i * len(envelope) / bars
		end := (i + 1) * len(envelope) / bars
		vectors[i] = packBarVector(envelope[start:end])
	}
	return vectors
}

func packBarVector(window []float32) []float32 {
	vec := make([]float32, features.BarDim)
	if len(window) > 0 {
		w64 := make([]float64, len(window))
		sumSq := 0.0
		for i, v := range window {
			w64[i] = float64(v)
			sumSq += float64(v) * float64(v)
		}
		peak := 0.0
		for _, v := range w64 {
			if v > peak {
				peak = v
			}
		}
		vec[0] = float32(math.Sqrt(sumSq / float64(len(window))))
		vec[1] = float32(peak)
		vec[2] = float32(stat.Mean(w64, nil))
		if len(w64) > 1 {
			vec[3] = float32(stat.Variance(w64, nil))
		}
	}
	n := len(window)
	if n > barSamplesLen {
		n = barSamplesLen
	}
	copy(vec[barStatsLen:barStatsLen+n], window[:n])
	return vec
}

// PhraseVectors groups bar vectors into phrases, mean-pools each group's
// 128-dim vectors, and appends sub-band energy and texture variance scalars
// inside a fixed 256-dim vector.
func PhraseVectors(barVectors [][]float32, phrases int) [][]float32 {
	vectors := make([][]float32, phrases)
	for i := 0; i < phrases; i++ {
		start := i * len(barVectors) / phrases
		end := (i + 1) * len(barVectors) / phrases
		vectors[i] = packPhraseVector(barVectors[start:end])
	}
	return vectors
}

func packPhraseVector(group [][]float32) []float32 {
	vec := make([]float32, features.PhraseDim)
	if len(group) == 0 {
		return vec
	}

	pooled := make([]float64, features.BarDim)
	for _, bar := range group {
		for d, v := range bar {
			pooled[d] += float64(v)
		}
	}
	for d := range pooled {
		pooled[d] /= float64(len(group))
		vec[d] = float32(pooled[d])
	}

	// Sub-band energy over the lower half of the raw-sample region, and
	// texture variance over the whole pooled vector.
	lower := pooled[barStatsLen : barStatsLen+barSamplesLen/2]
	vec[features.BarDim] = float32(stat.Mean(lower, nil))
	vec[features.BarDim+1] = float32(stat.Variance(pooled, nil))
	return vec
}
