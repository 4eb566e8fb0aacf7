package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-taro/pkg/actuation"
	"github.com/teslashibe/go-taro/pkg/creature"
	"github.com/teslashibe/go-taro/pkg/mouth"
	"github.com/teslashibe/go-taro/pkg/pipeline"
	"github.com/teslashibe/go-taro/pkg/stretch"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Mouth: mouth.Stats{
			Pulse:  1010,
			Mapper: actuation.Stats{Writes: 12, WriteErrors: 1},
			Stretch: &stretch.Stats{
				Speed:     1.25,
				Truncated: 4,
			},
			Pipeline: pipeline.Stats{
				Running:    true,
				Cycles:     42,
				ReadErrors: 2,
				Outputs: []pipeline.OutputStats{
					{Device: "left", Underruns: 3},
					{Device: "right", Underruns: 0},
				},
			},
		},
		Creature: creature.Stats{
			Neck:  &creature.NeckStats{Pulse: 1500},
			Wings: &creature.WingsStats{Flaps: 7},
		},
	}
}

func TestCollector_Pipeline(t *testing.T) {
	m := New(testSnapshot)

	expected := `
# HELP taro_pipeline_cycles_total Total number of completed capture-to-playback cycles
# TYPE taro_pipeline_cycles_total counter
taro_pipeline_cycles_total 42
# HELP taro_pipeline_underruns_total Total number of failed playback writes
# TYPE taro_pipeline_underruns_total counter
taro_pipeline_underruns_total{device="left"} 3
taro_pipeline_underruns_total{device="right"} 0
# HELP taro_pipeline_running Whether the audio pipeline is running
# TYPE taro_pipeline_running gauge
taro_pipeline_running 1
`
	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"taro_pipeline_cycles_total", "taro_pipeline_underruns_total", "taro_pipeline_running")
	if err != nil {
		t.Error(err)
	}
}

func TestCollector_Servos(t *testing.T) {
	m := New(testSnapshot)

	expected := `
# HELP taro_mouth_pulse_microseconds Last committed jaw servo pulse
# TYPE taro_mouth_pulse_microseconds gauge
taro_mouth_pulse_microseconds 1010
# HELP taro_mouth_servo_write_errors_total Total number of failed jaw servo writes
# TYPE taro_mouth_servo_write_errors_total counter
taro_mouth_servo_write_errors_total 1
# HELP taro_stretch_speed Current playback speed of the time-stretch effect
# TYPE taro_stretch_speed gauge
taro_stretch_speed 1.25
# HELP taro_wing_flaps_total Total number of wing flaps
# TYPE taro_wing_flaps_total counter
taro_wing_flaps_total 7
`
	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"taro_mouth_pulse_microseconds", "taro_mouth_servo_write_errors_total",
		"taro_stretch_speed", "taro_wing_flaps_total")
	if err != nil {
		t.Error(err)
	}
}

func TestCollector_OptionalPartsOmitted(t *testing.T) {
	c := NewCollector(func() Snapshot { return Snapshot{} })

	// cycles, read errors, running, rms, peak, mouth pulse, writes, write errors
	if n := testutil.CollectAndCount(c); n != 8 {
		t.Errorf("Expected 8 metrics without stretch, neck, wings or outputs, got %d", n)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New(testSnapshot)
	m.RecordHTTPRequest("GET", "/api/status", "200", 0.01)
	m.RecordHTTPRequest("GET", "/api/status", "200", 0.02)

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/status", "200")); got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
}
