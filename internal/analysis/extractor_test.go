package analysis_test

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"segue/internal/analysis"
	"segue/internal/features"
	"segue/internal/segueerr"
	"segue/internal/testsupport"
)

// cMajorTriad is C4, E4, G4: a pitch-class profile that resolves to 8B.
var cMajorTriad = []float64{261.63, 329.63, 392.00}

func extractTestClip(t *testing.T) []byte {
	t.Helper()
	samples := testsupport.ChordPulses(t, cMajorTriad, 120, 12, analysis.TargetSampleRate)
	return testsupport.WAVBytes(t, samples, analysis.TargetSampleRate, 1)
}

func TestExtractFullPipeline(t *testing.T) {
	extractor := analysis.NewExtractor(analysis.NewWAVDecoder(), 30*time.Second, nil)
	summary, set, err := extractor.Extract(context.Background(), extractTestClip(t))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if math.Abs(summary.TempoBPM-120) > 5 {
		t.Errorf("tempo = %f, want ~120", summary.TempoBPM)
	}
	if summary.KeyToken != "8B" {
		t.Errorf("key = %s, want 8B", summary.KeyToken)
	}
	if summary.Energy < 1 || summary.Energy > 10 {
		t.Errorf("energy = %f outside [1,10]", summary.Energy)
	}
	if math.Abs(summary.DurationSeconds-12) > 0.05 {
		t.Errorf("duration = %f, want ~12", summary.DurationSeconds)
	}
	if summary.Bars < 5 || summary.Bars > 7 {
		t.Errorf("bars = %d, want ~6", summary.Bars)
	}
	if summary.Phrases != 1 {
		t.Errorf("phrases = %d, want 1", summary.Phrases)
	}
	if err := set.Validate(summary); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if len(set.Waveform) != features.EnvelopeLength {
		t.Errorf("waveform length = %d", len(set.Waveform))
	}
}

func TestExtractDeterministic(t *testing.T) {
	clip := extractTestClip(t)
	extractor := analysis.NewExtractor(analysis.NewWAVDecoder(), 30*time.Second, nil)

	summaryA, setA, err := extractor.Extract(context.Background(), clip)
	if err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	summaryB, setB, err := extractor.Extract(context.Background(), clip)
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}

	if !reflect.DeepEqual(summaryA, summaryB) {
		t.Errorf("summaries differ: %+v vs %+v", summaryA, summaryB)
	}
	if !reflect.DeepEqual(setA, setB) {
		t.Errorf("feature sets differ")
	}
}

func TestExtractDecodeFailure(t *testing.T) {
	extractor := analysis.NewExtractor(analysis.NewWAVDecoder(), time.Second, nil)
	_, _, err := extractor.Extract(context.Background(), []byte("definitely not a wav file"))
	if !segueerr.IsKind(err, segueerr.KindDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestExtractSilenceFails(t *testing.T) {
	silence := testsupport.WAVBytes(t, make([]float64, 3*analysis.TargetSampleRate), analysis.TargetSampleRate, 1)
	extractor := analysis.NewExtractor(analysis.NewWAVDecoder(), 30*time.Second, nil)
	_, _, err := extractor.Extract(context.Background(), silence)
	if !segueerr.IsKind(err, segueerr.KindExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

type hangingDecoder struct{}

func (hangingDecoder) Decode(ctx context.Context, _ []byte) (*analysis.PCM, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExtractTimeout(t *testing.T) {
	extractor := analysis.NewExtractor(hangingDecoder{}, 50*time.Millisecond, nil)
	_, _, err := extractor.Extract(context.Background(), nil)
	if !segueerr.IsKind(err, segueerr.KindExtractionTimeout) {
		t.Fatalf("expected extraction-timeout error, got %v", err)
	}
}
