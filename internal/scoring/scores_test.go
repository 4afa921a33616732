package scoring

import (
	"math"
	"testing"

	"segue/internal/music"
)

func TestTempoScoreTable(t *testing.T) {
	cases := []struct {
		a, b float64
		want float64
	}{
		{128, 128, 1.00},
		{128, 130, 0.95},
		{128, 133, 0.85},
		{128, 138, 0.70},
		{128, 143, 0.50},
		{128, 144, 0.30},
		{128, 145, 0.10},
		{128, 190, 0.10},
	}
	for _, tc := range cases {
		if got := TempoScore(tc.a, tc.b); got != tc.want {
			t.Errorf("TempoScore(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := TempoScore(tc.b, tc.a); got != tc.want {
			t.Errorf("TempoScore(%v, %v) = %v, want %v (symmetry)", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestTempoScoreExampleSeventeen(t *testing.T) {
	// diff 17 falls past the 15 band but inside no closer one.
	if got := TempoScore(128, 145); got != 0.10 {
		t.Fatalf("TempoScore(128, 145) = %v, want 0.10", got)
	}
}

func TestHarmonicScoreIdentity(t *testing.T) {
	for _, key := range music.AllKeys() {
		if got := HarmonicScore(key, key); got != 1.0 {
			t.Errorf("HarmonicScore(%s, %s) = %v, want 1.0", key, key, got)
		}
	}
}

func TestHarmonicScoreNeighbors(t *testing.T) {
	cases := []struct {
		k1, k2 string
		want   float64
	}{
		{"8A", "8B", 0.95},  // relative
		{"8A", "9A", 0.85},  // adjacent, same ring
		{"12B", "1B", 0.85}, // adjacent across the wrap
		{"8A", "10A", 0.65}, // two steps, base 0.667
		{"8A", "9B", 0.65},  // one step across rings, base 0.667
	}
	for _, tc := range cases {
		k1 := music.MustParseKey(tc.k1)
		k2 := music.MustParseKey(tc.k2)
		if got := HarmonicScore(k1, k2); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("HarmonicScore(%s, %s) = %v, want %v", tc.k1, tc.k2, got, tc.want)
		}
	}
}

func TestHarmonicScoreDistantKeys(t *testing.T) {
	k1 := music.MustParseKey("8A")
	k2 := music.MustParseKey("2B") // distance 6, cross ring: base 0
	if got := HarmonicScore(k1, k2); got != 0 {
		t.Fatalf("HarmonicScore(8A, 2B) = %v, want 0", got)
	}
	for _, key := range music.AllKeys() {
		for _, other := range music.AllKeys() {
			got := HarmonicScore(key, other)
			if got < 0 || got > 1 {
				t.Fatalf("HarmonicScore(%s, %s) = %v outside [0,1]", key, other, got)
			}
		}
	}
}

func TestEnergyTransitionScoreTable(t *testing.T) {
	cases := []struct {
		a, b float64
		want float64
	}{
		{7.0, 7.2, 1.00},
		{7.0, 6.6, 1.00},
		{5.0, 6.5, 0.90},
		{5.0, 8.0, 0.75},
		{6.5, 5.0, 0.85},
		{8.0, 5.0, 0.70},
		{3.0, 8.0, 0.50},
		{8.0, 3.0, 0.50},
		{1.0, 9.0, 0.20},
		{9.0, 1.0, 0.20},
	}
	for _, tc := range cases {
		if got := EnergyTransitionScore(tc.a, tc.b); got != tc.want {
			t.Errorf("EnergyTransitionScore(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestEnergyTransitionAsymmetry(t *testing.T) {
	build := EnergyTransitionScore(5, 7)
	drop := EnergyTransitionScore(7, 5)
	if build <= drop {
		t.Fatalf("build %v should outscore drop %v", build, drop)
	}
}

func TestTimingScore(t *testing.T) {
	if got := TimingScore(1, 1); got != 1.0 {
		t.Errorf("TimingScore(1, 1) = %v, want 1.0", got)
	}
	if got := TimingScore(0, 0); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("TimingScore(0, 0) = %v, want 0.8", got)
	}
	if got := TimingScore(0.875, 0.25); math.Abs(got-0.5875) > 1e-9 {
		t.Errorf("TimingScore(0.875, 0.25) = %v, want 0.5875", got)
	}
}

func TestWeightsSumToOne(t *testing.T) {
	candidate := weightHarmonic + weightTempo + weightEnergy + weightTiming + weightContour
	if candidate != 1.0 {
		t.Errorf("candidate weights sum to %v", candidate)
	}
	recommendation := recWeightHarmonic + recWeightTempo + recWeightEnergy + recWeightTexture + recWeightPhrase
	if recommendation != 1.0 {
		t.Errorf("recommendation weights sum to %v", recommendation)
	}
}
