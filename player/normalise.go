package player

import "math"

// dbVoltageRatio converts between decibels and linear amplitude ratio,
// using the voltage (amplitude) convention: ratio = 10^(db/20).
const dbVoltageRatio = 20.0

// pcmAt0DBFS is full scale in this engine's linear sample representation.
const pcmAt0DBFS = 1.0

func dbToRatio(db float64) float64 {
	return math.Pow(10, db/dbVoltageRatio)
}

func ratioToDB(ratio float64) float64 {
	return math.Log10(ratio) * dbVoltageRatio
}

// coefficientFromTimeConstant converts a smoothing time constant (seconds)
// to the exponential coefficient the limiter's peak detector uses, at the
// given sample rate.
func coefficientFromTimeConstant(seconds float64, sampleRate int) float64 {
	return math.Exp(-1 / (seconds * float64(sampleRate)))
}

// timeConstantFromCoefficient is the inverse of coefficientFromTimeConstant.
func timeConstantFromCoefficient(cf float64, sampleRate int) float64 {
	return -1 / math.Log(cf) / float64(sampleRate)
}

// Method selects how (or whether) loudness normalisation is applied.
type Method int

const (
	MethodNone Method = iota
	MethodBasic
	MethodDynamic
)

// Type selects which of a track's two gain values (its own, or its
// album's) normalisation uses.
type Type int

const (
	TypeAuto Type = iota
	TypeTrack
	TypeAlbum
)

// NormalisationConfig parameterises both normalisation methods.
type NormalisationConfig struct {
	Method           Method
	Type             Type
	PregainDB        float64
	ThresholdDBFS    float64
	KneeDB           float64
	AttackCf         float64
	ReleaseCf        float64
	AutoAsAlbum      bool // toggled by SetAutoNormaliseAsAlbum
}

// gainAndPeak picks track or album gain/peak per cfg.Type (resolving
// Auto against AutoAsAlbum).
func (cfg NormalisationConfig) gainAndPeak(l LoudnessData) (gainDB, peak float64) {
	useAlbum := cfg.Type == TypeAlbum || (cfg.Type == TypeAuto && cfg.AutoAsAlbum)
	if useAlbum {
		return float64(l.AlbumGainDB), float64(l.AlbumPeak)
	}
	return float64(l.TrackGainDB), float64(l.TrackPeak)
}

// factor computes the basic/dynamic normalisation factor applied before
// volume and (for Dynamic) before the limiter. Method None returns 1.0.
func (cfg NormalisationConfig) factor(l LoudnessData) float64 {
	if cfg.Method == MethodNone {
		return 1.0
	}
	gainDB, peak := cfg.gainAndPeak(l)

	if cfg.Method == MethodBasic {
		f := math.Min(dbToRatio(gainDB+cfg.PregainDB), pcmAt0DBFS/peak)
		if f > pcmAt0DBFS {
			return pcmAt0DBFS
		}
		return f
	}
	return dbToRatio(gainDB + cfg.PregainDB)
}

// Limiter is the feed-forward, log-domain dynamic-range limiter: a soft-
// knee gain computer feeding a decoupled smooth peak detector, after
// Giannoulis, Massberg & Reiss (2012), "Digital Dynamic Range
// Compressor Design — A Tutorial and Analysis".
type Limiter struct {
	ThresholdDBFS float64
	KneeDB        float64
	AttackCf      float64
	ReleaseCf     float64

	integrator float64
	peak       float64
}

// Process gain-reduces one sample already scaled by the normalisation
// factor, returning the final linear sample value. It is a no-op for
// exact zero, non-finite input, or when the limiter is fully relaxed.
func (lim *Limiter) Process(sample float64) float64 {
	limiterDB := 0.0
	if isNormalFloat(sample) {
		biasDB := ratioToDB(math.Abs(sample)) - lim.ThresholdDBFS
		kneeBoundaryDB := biasDB * 2

		switch {
		case kneeBoundaryDB < -lim.KneeDB:
			limiterDB = 0
		case math.Abs(kneeBoundaryDB) <= lim.KneeDB:
			limiterDB = math.Pow(kneeBoundaryDB+lim.KneeDB, 2) / (8 * lim.KneeDB)
		default:
			limiterDB = biasDB
		}
	}

	if limiterDB <= 0 && lim.integrator <= 0 && lim.peak <= 0 {
		return sample
	}

	lim.integrator = math.Max(limiterDB, lim.ReleaseCf*lim.integrator-lim.ReleaseCf*limiterDB+limiterDB)
	lim.peak = lim.AttackCf*lim.peak - lim.AttackCf*lim.integrator + lim.integrator

	return sample * dbToRatio(-lim.peak)
}

// isNormalFloat rejects exact zero, NaN, and infinities — the cases the
// limiter must short-circuit on, since ratioToDB(0) is -Inf and would
// stick the peak detector at +Inf forever.
func isNormalFloat(f float64) bool {
	return f != 0 && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// applyPipeline runs the full per-sample packet pipeline: normalisation
// factor, dynamic limiter (if enabled), then volume.
func applyPipeline(samples []float32, cfg NormalisationConfig, loud LoudnessData, lim *Limiter, volume float64) {
	switch cfg.Method {
	case MethodNone:
		if volume < 1.0 {
			for i, s := range samples {
				samples[i] = float32(float64(s) * volume)
			}
		}
	case MethodBasic:
		f := cfg.factor(loud)
		if f < 1.0 || volume < 1.0 {
			for i, s := range samples {
				samples[i] = float32(float64(s) * f * volume)
			}
		}
	case MethodDynamic:
		f := cfg.factor(loud)
		for i, s := range samples {
			x := float64(s) * f
			x = lim.Process(x)
			x *= volume
			samples[i] = float32(x)
		}
	}
}
