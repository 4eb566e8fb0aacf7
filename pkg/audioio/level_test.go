package audioio

import (
	"math"
	"testing"
)

func TestMeanAbs(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]int16, 16), 0},
		{"square", []int16{100, -100, 100, -100}, 100},
		{"full scale negative", []int16{-32768, -32768}, 32768},
		{"mixed", []int16{0, 10, -30, 20}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeanAbs(tt.samples); got != tt.want {
				t.Errorf("MeanAbs = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeter_Measure(t *testing.T) {
	var m Meter

	silent := m.Measure(make([]int16, 64))
	if silent.RMSDB != SilenceDB || silent.PeakDB != SilenceDB {
		t.Errorf("Expected silence floor, got %+v", silent)
	}

	frame := make([]int16, 64)
	Constant(16384)(frame, 0)
	lvl := m.Measure(frame)

	// Half scale square wave: RMS == peak == -6.02 dBFS.
	want := 20 * math.Log10(0.5)
	if math.Abs(lvl.RMSDB-want) > 1e-6 {
		t.Errorf("Expected RMS %.3f dBFS, got %.3f", want, lvl.RMSDB)
	}
	if math.Abs(lvl.PeakDB-want) > 1e-6 {
		t.Errorf("Expected peak %.3f dBFS, got %.3f", want, lvl.PeakDB)
	}
	if lvl.MeanAbs != 16384 {
		t.Errorf("Expected mean abs 16384, got %v", lvl.MeanAbs)
	}
}
