package player

import (
	"math"
	"testing"
)

func TestDbRatioRoundTrip(t *testing.T) {
	for _, db := range []float64{-20, -6, 0, 3, 12} {
		ratio := dbToRatio(db)
		got := ratioToDB(ratio)
		if math.Abs(got-db) > 1e-9 {
			t.Errorf("round trip db=%v got=%v", db, got)
		}
	}
}

func TestCoefficientTimeConstantRoundTrip(t *testing.T) {
	cf := coefficientFromTimeConstant(0.1, 44100)
	got := timeConstantFromCoefficient(cf, 44100)
	if math.Abs(got-0.1) > 1e-6 {
		t.Errorf("round trip tau=0.1 got=%v", got)
	}
}

func TestMethodNoneIsNeutralAtFullVolume(t *testing.T) {
	samples := []float32{0.5, -0.25, 0.9}
	orig := append([]float32(nil), samples...)
	applyPipeline(samples, NormalisationConfig{Method: MethodNone}, LoudnessData{}, nil, 1.0)
	for i := range samples {
		if samples[i] != orig[i] {
			t.Errorf("sample %d changed: %v -> %v", i, orig[i], samples[i])
		}
	}
}

func TestVolumeScalesDownOnly(t *testing.T) {
	samples := []float32{0.5, -0.5}
	applyPipeline(samples, NormalisationConfig{Method: MethodNone}, LoudnessData{}, nil, 0.5)
	if samples[0] != 0.25 || samples[1] != -0.25 {
		t.Errorf("got %v, want halved", samples)
	}
}

func TestBasicNormalisationNeverExceedsUnity(t *testing.T) {
	loud := LoudnessData{TrackGainDB: 20, TrackPeak: 0.1} // extreme positive gain
	cfg := NormalisationConfig{Method: MethodBasic, Type: TypeTrack}
	f := cfg.factor(loud)
	if f > pcmAt0DBFS+1e-9 {
		t.Errorf("basic normalisation factor %v exceeds 0 dBFS", f)
	}
}

func TestLimiterIsNoOpBelowThreshold(t *testing.T) {
	lim := &Limiter{ThresholdDBFS: -1, KneeDB: 1, AttackCf: 0.9, ReleaseCf: 0.9}
	quiet := 0.01 // well under threshold
	out := lim.Process(quiet)
	if out != quiet {
		t.Errorf("quiet sample should pass through unchanged, got %v want %v", out, quiet)
	}
}

func TestLimiterReducesGainAboveThreshold(t *testing.T) {
	lim := &Limiter{ThresholdDBFS: -6, KneeDB: 1, AttackCf: 0.9, ReleaseCf: 0.9}
	loud := 0.99
	var out float64
	for i := 0; i < 50; i++ {
		out = lim.Process(loud)
	}
	if out >= loud {
		t.Errorf("limiter should reduce a sustained loud sample, got %v >= %v", out, loud)
	}
	if lim.integrator < 0 || lim.peak < 0 {
		t.Errorf("integrator/peak must stay non-negative, got integrator=%v peak=%v", lim.integrator, lim.peak)
	}
}

func TestLimiterDecaysTowardZeroOnSilence(t *testing.T) {
	lim := &Limiter{ThresholdDBFS: -6, KneeDB: 1, AttackCf: 0.9, ReleaseCf: 0.9}
	// Long enough for the peak detector to settle onto the integrator;
	// before that the peak keeps rising toward it even once input stops.
	for i := 0; i < 200; i++ {
		lim.Process(0.999)
	}
	peakAfterLoud := lim.peak
	if peakAfterLoud <= 0 {
		t.Fatalf("expected engaged limiter, peak=%v", peakAfterLoud)
	}
	var last float64 = peakAfterLoud
	for i := 0; i < 500; i++ {
		lim.Process(1e-9) // effectively silence, but non-zero so is_normal holds
		if lim.peak > last+1e-12 {
			t.Fatalf("peak increased during decay: %v -> %v", last, lim.peak)
		}
		last = lim.peak
	}
	if last >= peakAfterLoud {
		t.Errorf("peak did not decay: start=%v end=%v", peakAfterLoud, last)
	}
}

func TestLimiterSkipsExactZero(t *testing.T) {
	lim := &Limiter{ThresholdDBFS: -6, KneeDB: 1, AttackCf: 0.9, ReleaseCf: 0.9}
	if out := lim.Process(0); out != 0 {
		t.Errorf("zero sample should stay zero, got %v", out)
	}
	if lim.integrator != 0 || lim.peak != 0 {
		t.Errorf("processing a zero sample must not engage the limiter")
	}
}

func TestGainSelectionRespectsAutoAsAlbum(t *testing.T) {
	loud := LoudnessData{TrackGainDB: -3, AlbumGainDB: -9}
	auto := NormalisationConfig{Type: TypeAuto, AutoAsAlbum: false}
	gainTrack, _ := auto.gainAndPeak(loud)
	if gainTrack != -3 {
		t.Errorf("Auto without AutoAsAlbum should use track gain, got %v", gainTrack)
	}
	auto.AutoAsAlbum = true
	gainAlbum, _ := auto.gainAndPeak(loud)
	if gainAlbum != -9 {
		t.Errorf("Auto with AutoAsAlbum should use album gain, got %v", gainAlbum)
	}
}
