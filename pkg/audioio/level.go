package audioio

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	dspstats "github.com/cwbudde/algo-dsp/stats/time"
)

// FullScale is the magnitude of the most negative int16 sample.
const FullScale = 32768.0

// SilenceDB is the floor reported for digital silence.
const SilenceDB = -120.0

// MeanAbs returns the mean absolute sample value (rectified envelope) of
// a frame in raw sample units.
func MeanAbs(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// Level summarises one frame for telemetry.
type Level struct {
	MeanAbs float64 `json:"mean_abs"`
	RMSDB   float64 `json:"rms_dbfs"`
	PeakDB  float64 `json:"peak_dbfs"`
}

// Meter computes frame levels with a reusable scratch buffer.
// A Meter must not be shared between goroutines.
type Meter struct {
	scratch []float64
}

// Measure returns the level of a frame.
func (m *Meter) Measure(samples []int16) Level {
	if cap(m.scratch) < len(samples) {
		m.scratch = make([]float64, len(samples))
	}
	x := m.scratch[:len(samples)]
	for i, s := range samples {
		x[i] = float64(s) / FullScale
	}
	return Level{
		MeanAbs: MeanAbs(samples),
		RMSDB:   toDBFS(dspstats.RMS(x)),
		PeakDB:  toDBFS(dspstats.Peak(x)),
	}
}

func toDBFS(linear float64) float64 {
	db := core.LinearToDB(linear)
	if math.IsInf(db, -1) || math.IsNaN(db) || db < SilenceDB {
		return SilenceDB
	}
	return db
}
