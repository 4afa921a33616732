package features

import (
	"fmt"

	"segue/internal/music"
)

// Vector dimensions are fixed per level and never vary across tracks.
const (
	EnvelopeLength = 80
	BarDim         = 128
	PhraseDim      = 256
)

// Summary is the compact per-track description attached to a ready manifest.
type Summary struct {
	TempoBPM        float64   `json:"tempo_bpm"`
	Key             music.Key `json:"-"`
	KeyToken        string    `json:"key"`
	Energy          float64   `json:"energy"`
	DurationSeconds float64   `json:"duration_seconds"`
	Bars            int       `json:"bars"`
	Phrases         int       `json:"phrases"`
}

// NormalizeKey keeps Key and KeyToken in sync after JSON decoding.
func (s *Summary) NormalizeKey() error {
	if s.KeyToken == "" && s.Key.Valid() {
		s.KeyToken = s.Key.String()
		return nil
	}
	key, err := music.ParseKey(s.KeyToken)
	if err != nil {
		return err
	}
	s.Key = key
	return nil
}

// FeatureSet holds the fixed-dimension vectors extracted from one track.
type FeatureSet struct {
	Waveform      []float32
	BarVectors    [][]float32
	PhraseVectors [][]float32
}

// Validate checks the dimensional invariants against a summary.
func (fs *FeatureSet) Validate(summary *Summary) error {
	if len(fs.Waveform) != EnvelopeLength {
		return fmt.Errorf("waveform length %d, want %d", len(fs.Waveform), EnvelopeLength)
	}
	if len(fs.BarVectors) != summary.Bars {
		return fmt.Errorf("bar vector count %d, want %d", len(fs.BarVectors), summary.Bars)
	}
	if len(fs.PhraseVectors) != summary.Phrases {
		return fmt.Errorf("phrase vector count %d, want %d", len(fs.PhraseVectors), summary.Phrases)
	}
	for i, vec := range fs.BarVectors {
		if len(vec) != BarDim {
			return fmt.Errorf("bar vector %d has dimension %d, want %d", i, len(vec), BarDim)
		}
	}
	for i, vec := range fs.PhraseVectors {
		if len(vec) != PhraseDim {
			return fmt.Errorf("phrase vector %d has dimension %d, want %d", i, len(vec), PhraseDim)
		}
	}
	return nil
}
