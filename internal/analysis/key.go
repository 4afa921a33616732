package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"

	"segue/internal/music"
	"segue/internal/segueerr"
)

const (
	chromaFrameSize = 8192

	chromaMinHz = 55.0
	chromaMaxHz = 5000.0

	// Minimum Pearson correlation against the winning key profile.
	minKeyConfidence = 0.5
)

// Krumhansl-Schmuckler tonal hierarchy profiles, index 0 = tonic.
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// EstimateKey detects the musical key from aggregated pitch-class content and
// maps it onto the Camelot wheel. Low-confidence detections are reported as
// missing features, never replaced with a default key.
func EstimateKey(pcm *PCM) (music.Key, error) {
	chroma := Chromagram(pcm)
	return KeyFromChroma(chroma)
}

// Chromagram folds the magnitude spectrum of non-overlapping frames into the
// 12 pitch classes (index 0 = C), summed over the whole clip.
func Chromagram(pcm *PCM) [12]float64 {
	var chroma [12]float64
	if len(pcm.Samples) < chromaFrameSize {
		return chroma
	}
	binHz := float64(pcm.SampleRate) / chromaFrameSize
	window := make([]float64, chromaFrameSize)
	frames := len(pcm.Samples) / chromaFrameSize
	for f := 0; f < frames; f++ {
		copy(window, pcm.Samples[f*chromaFrameSize:(f+1)*chromaFrameSize])
		hann(window)
		spectrum := fft.FFTReal(window)
		for bin := 1; bin < chromaFrameSize/2; bin++ {
			freq := float64(bin) * binHz
			if freq < chromaMinHz || freq > chromaMaxHz {
				continue
			}
			// MIDI note 69 is A4 at 440 Hz; note 60 (C4) folds to class 0.
			midi := 69 + 12*math.Log2(freq/440)
			class := ((int(math.Round(midi)) % 12) + 12) % 12
			chroma[class] += cmplx.Abs(spectrum[bin])
		}
	}
	return chroma
}

// KeyFromChroma correlates a pitch-class histogram against all 24 rotated key
// profiles and returns the best match with its confidence.
func KeyFromChroma(chroma [12]float64) (music.Key, error) {
	const op = "estimate key"

	total := 0.0
	for _, v := range chroma {
		total += v
	}
	if total == 0 {
		return music.Key{}, segueerr.New(segueerr.KindMissingFeature, op, "no harmonic content")
	}

	bestTonic, bestMinor, bestCorr := -1, false, 0.0
	for tonic := 0; tonic < 12; tonic++ {
		if corr := profileCorrelation(chroma, tonic, majorProfile); corr > bestCorr {
			bestTonic, bestMinor, bestCorr = tonic, false, corr
		}
		if corr := profileCorrelation(chroma, tonic, minorProfile); corr > bestCorr {
			bestTonic, bestMinor, bestCorr = tonic, true, corr
		}
	}
	if bestTonic < 0 || bestCorr < minKeyConfidence {
		return music.Key{}, segueerr.New(segueerr.KindMissingFeature, op, "no confident key (best correlation %.3f)", bestCorr)
	}
	key, err := music.KeyFromPitchClass(bestTonic, bestMinor)
	if err != nil {
		return music.Key{}, segueerr.Wrap(segueerr.KindMissingFeature, op, err)
	}
	return key, nil
}

// profileCorrelation is the Pearson correlation between the chroma rotated to
// a candidate tonic and a tonal profile.
func profileCorrelation(chroma [12]float64, tonic int, profile [12]float64) float64 {
	rotated := make([]float64, 12)
	for i := 0; i < 12; i++ {
		rotated[i] = chroma[(tonic+i)%12]
	}
	return stat.Correlation(rotated, profile[:], nil)
}
