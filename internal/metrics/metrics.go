// Package metrics exposes creature telemetry to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-taro/pkg/creature"
	"github.com/teslashibe/go-taro/pkg/mouth"
)

// Snapshot is everything reported about the creature at one instant.
type Snapshot struct {
	Mouth    mouth.Stats    `json:"mouth"`
	Creature creature.Stats `json:"creature"`
}

// SnapshotFunc returns the current snapshot.
type SnapshotFunc func() Snapshot

// Metrics holds the registry and the HTTP instruments.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a registry with the creature collector, the Go runtime
// collectors and the HTTP instruments.
func New(source SnapshotFunc) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewCollector(source),
	)

	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taro_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taro_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

var (
	descCycles = prometheus.NewDesc("taro_pipeline_cycles_total",
		"Total number of completed capture-to-playback cycles", nil, nil)
	descReadErrors = prometheus.NewDesc("taro_pipeline_read_errors_total",
		"Total number of failed capture reads", nil, nil)
	descUnderruns = prometheus.NewDesc("taro_pipeline_underruns_total",
		"Total number of failed playback writes", []string{"device"}, nil)
	descRunning = prometheus.NewDesc("taro_pipeline_running",
		"Whether the audio pipeline is running", nil, nil)
	descRMS = prometheus.NewDesc("taro_audio_rms_dbfs",
		"RMS level of the last captured frame", nil, nil)
	descPeak = prometheus.NewDesc("taro_audio_peak_dbfs",
		"Peak level of the last captured frame", nil, nil)

	descMouthPulse = prometheus.NewDesc("taro_mouth_pulse_microseconds",
		"Last committed jaw servo pulse", nil, nil)
	descMouthWrites = prometheus.NewDesc("taro_mouth_servo_writes_total",
		"Total number of jaw servo writes", nil, nil)
	descMouthWriteErrors = prometheus.NewDesc("taro_mouth_servo_write_errors_total",
		"Total number of failed jaw servo writes", nil, nil)

	descStretchSpeed = prometheus.NewDesc("taro_stretch_speed",
		"Current playback speed of the time-stretch effect", nil, nil)
	descStretchTruncated = prometheus.NewDesc("taro_stretch_truncated_frames_total",
		"Total number of frames cut short by the end of history", nil, nil)

	descNeckPulse = prometheus.NewDesc("taro_neck_pulse_microseconds",
		"Current neck servo pulse", nil, nil)
	descWingFlaps = prometheus.NewDesc("taro_wing_flaps_total",
		"Total number of wing flaps", nil, nil)
)

// Collector reads a snapshot on every scrape.
type Collector struct {
	source SnapshotFunc
}

// NewCollector creates a collector over source.
func NewCollector(source SnapshotFunc) *Collector {
	return &Collector{source: source}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descCycles, descReadErrors, descUnderruns, descRunning, descRMS, descPeak,
		descMouthPulse, descMouthWrites, descMouthWriteErrors,
		descStretchSpeed, descStretchTruncated,
		descNeckPulse, descWingFlaps,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	p := s.Mouth.Pipeline

	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(descCycles, float64(p.Cycles))
	counter(descReadErrors, float64(p.ReadErrors))
	for _, o := range p.Outputs {
		counter(descUnderruns, float64(o.Underruns), o.Device)
	}
	running := 0.0
	if p.Running {
		running = 1
	}
	gauge(descRunning, running)
	gauge(descRMS, p.Level.RMSDB)
	gauge(descPeak, p.Level.PeakDB)

	gauge(descMouthPulse, s.Mouth.Pulse)
	counter(descMouthWrites, float64(s.Mouth.Mapper.Writes))
	counter(descMouthWriteErrors, float64(s.Mouth.Mapper.WriteErrors))

	if st := s.Mouth.Stretch; st != nil {
		gauge(descStretchSpeed, st.Speed)
		counter(descStretchTruncated, float64(st.Truncated))
	}
	if n := s.Creature.Neck; n != nil {
		gauge(descNeckPulse, n.Pulse)
	}
	if w := s.Creature.Wings; w != nil {
		counter(descWingFlaps, float64(w.Flaps))
	}
}
