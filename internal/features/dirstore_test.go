package features_test

import (
	"context"
	"reflect"
	"testing"

	"segue/internal/features"
	"segue/internal/music"
	"segue/internal/segueerr"
)

func sampleArtifacts(bars, phrases int) (*features.FeatureSet, *features.Summary) {
	summary := &features.Summary{
		TempoBPM:        126,
		Key:             music.MustParseKey("8A"),
		Energy:          6.5,
		DurationSeconds: 240,
		Bars:            bars,
		Phrases:         phrases,
	}
	set := &features.FeatureSet{
		Waveform:      make([]float32, features.EnvelopeLength),
		BarVectors:    make([][]float32, bars),
		PhraseVectors: make([][]float32, phrases),
	}
	for i := range set.Waveform {
		set.Waveform[i] = float32(i%10) / 10
	}
	for i := range set.BarVectors {
		vec := make([]float32, features.BarDim)
		vec[0] = float32(i + 1)
		set.BarVectors[i] = vec
	}
	for i := range set.PhraseVectors {
		vec := make([]float32, features.PhraseDim)
		vec[0] = float32(i + 1)
		set.PhraseVectors[i] = vec
	}
	return set, summary
}

func TestDirStoreRoundTrip(t *testing.T) {
	store, err := features.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()
	set, summary := sampleArtifacts(16, 2)

	if err := store.Save(ctx, "track-1", set, summary); err != nil {
		t.Fatalf("Save: %v", err)
	}

	gotSet, gotSummary, err := store.Load(ctx, "track-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(gotSet, set) {
		t.Error("feature set round trip mismatch")
	}
	if gotSummary.Key != summary.Key || gotSummary.TempoBPM != summary.TempoBPM ||
		gotSummary.Bars != summary.Bars || gotSummary.Phrases != summary.Phrases {
		t.Errorf("summary round trip mismatch: %+v vs %+v", gotSummary, summary)
	}
}

func TestDirStoreSaveIsIdempotentOverwrite(t *testing.T) {
	store, err := features.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()

	first, firstSummary := sampleArtifacts(8, 1)
	if err := store.Save(ctx, "track-1", first, firstSummary); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	second, secondSummary := sampleArtifacts(16, 2)
	second.BarVectors[0][0] = 99
	if err := store.Save(ctx, "track-1", second, secondSummary); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	gotSet, gotSummary, err := store.Load(ctx, "track-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotSummary.Bars != 16 {
		t.Errorf("expected overwrite to win, bars = %d", gotSummary.Bars)
	}
	if gotSet.BarVectors[0][0] != 99 {
		t.Error("expected overwritten bar vector")
	}
}

func TestDirStoreLoadMissingTrack(t *testing.T) {
	store, err := features.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	_, _, err = store.Load(context.Background(), "missing")
	if !segueerr.IsKind(err, segueerr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestDirStoreExists(t *testing.T) {
	store, err := features.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()

	ok, err := store.Exists(ctx, "track-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected missing track")
	}

	set, summary := sampleArtifacts(8, 1)
	if err := store.Save(ctx, "track-1", set, summary); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ok, err = store.Exists(ctx, "track-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Fatal("expected stored track to exist")
	}
}

func TestSaveRejectsInvariantViolations(t *testing.T) {
	store, err := features.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	set, summary := sampleArtifacts(8, 1)
	summary.Bars = 9 // len(bar_vectors) != summary.bars
	if err := store.Save(context.Background(), "track-1", set, summary); err == nil {
		t.Fatal("expected validation error")
	}
}
