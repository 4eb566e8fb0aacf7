// Package pipeline runs the real-time capture, actuate, effect, playback loop.
//
// One goroutine per Pipeline reads a fixed-size frame, hands it to the
// injected FrameHandler (which may write to a servo), runs the optional
// in-place Processor over it and writes the result to every output stream.
// Stream faults are recovered by re-priming the affected stream; nothing
// after Start is fatal.
//
// Shutdown is cooperative: Stop clears a flag the loop checks once per
// cycle, so it returns after at most one in-flight read or write.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-taro/pkg/audioio"
)

// ErrNoHandler is returned by New without a frame handler.
var ErrNoHandler = errors.New("pipeline: frame handler is required")

// FrameHandler inspects each captured frame before the effect runs.
// It must not retain the frame after returning.
type FrameHandler interface {
	HandleFrame(frame []int16)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(frame []int16)

// HandleFrame calls f(frame).
func (f FrameHandlerFunc) HandleFrame(frame []int16) {
	f(frame)
}

// Processor transforms a frame in place.
type Processor interface {
	Process(frame []int16)
}

// resetter is implemented by processors with per-run state.
type resetter interface {
	Reset()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEffect sets the in-place effect applied after the frame handler.
func WithEffect(p Processor) Option {
	return func(pl *Pipeline) {
		pl.effect = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(pl *Pipeline) {
		pl.logger = logger
	}
}

// Pipeline owns one capture stream, one or two playback streams and the
// goroutine moving frames between them.
type Pipeline struct {
	id      string
	cfg     Config
	format  audioio.Config
	opener  audioio.Opener
	handler FrameHandler
	effect  Processor
	logger  *slog.Logger

	// mu serialises Start and Stop.
	mu      sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup
	capture audioio.Capture
	outputs []audioio.Playback
	started atomic.Int64

	cycles     atomic.Int64
	readErrors atomic.Int64
	underruns  []atomic.Int64

	levelMu sync.Mutex
	level   audioio.Level
}

// New creates a stopped pipeline. Streams are opened by Start.
func New(cfg Config, format audioio.Config, opener audioio.Opener, handler FrameHandler, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}
	if opener == nil {
		return nil, errors.New("pipeline: audio opener is required")
	}
	if handler == nil {
		return nil, ErrNoHandler
	}

	cfg.PlaybackDevices = append([]string(nil), cfg.PlaybackDevices...)

	p := &Pipeline{
		id:        uuid.NewString(),
		cfg:       cfg,
		format:    format,
		opener:    opener,
		handler:   handler,
		underruns: make([]atomic.Int64, len(cfg.PlaybackDevices)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "pipeline", "pipeline_id", p.id)
	return p, nil
}

// Start opens all streams and starts the processing goroutine.
// It is a no-op if the pipeline is already running. If any stream fails to
// open, the streams opened so far are closed and the error is returned.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return nil
	}

	capture, err := p.opener.OpenCapture(p.cfg.CaptureDevice)
	if err != nil {
		return fmt.Errorf("open capture %q: %w", p.cfg.CaptureDevice, err)
	}

	outputs := make([]audioio.Playback, 0, len(p.cfg.PlaybackDevices))
	for _, dev := range p.cfg.PlaybackDevices {
		out, err := p.opener.OpenPlayback(dev)
		if err != nil {
			closeErr := closeStreams(capture, outputs)
			if closeErr != nil {
				p.logger.Warn("close after failed start", "error", closeErr)
			}
			return fmt.Errorf("open playback %q: %w", dev, err)
		}
		outputs = append(outputs, out)
	}

	if r, ok := p.effect.(resetter); ok {
		r.Reset()
	}

	p.capture = capture
	p.outputs = outputs
	p.started.Store(time.Now().UnixNano())
	p.running.Store(true)

	p.wg.Add(1)
	go p.loop(capture, outputs)

	p.logger.Info("pipeline started",
		"capture", p.cfg.CaptureDevice,
		"playback", p.cfg.PlaybackDevices,
		"sample_rate", p.format.SampleRate,
		"frame_size", p.format.FrameSize,
	)
	return nil
}

// Stop signals the processing goroutine, waits for it to finish its
// current cycle and closes all streams. It is a no-op if not running.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	p.wg.Wait()

	err := closeStreams(p.capture, p.outputs)
	p.capture = nil
	p.outputs = nil

	p.logger.Info("pipeline stopped",
		"cycles", p.cycles.Load(),
		"read_errors", p.readErrors.Load(),
	)
	return err
}

// Running reports whether the processing goroutine is active.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// ID returns the pipeline's instance id.
func (p *Pipeline) ID() string {
	return p.id
}

func (p *Pipeline) loop(capture audioio.Capture, outputs []audioio.Playback) {
	defer p.wg.Done()

	frame := make([]int16, p.format.FrameSize)
	var meter audioio.Meter

	for p.running.Load() {
		if err := capture.ReadFrame(frame); err != nil {
			p.readErrors.Add(1)
			p.logger.Debug("capture read failed, re-priming", "error", err)
			if perr := capture.Prepare(); perr != nil {
				p.logger.Warn("capture re-prime failed", "error", perr)
				// Avoid spinning on a stream that cannot recover.
				time.Sleep(p.format.FrameDuration())
			}
			continue
		}

		lvl := meter.Measure(frame)

		p.handler.HandleFrame(frame)
		if p.effect != nil {
			p.effect.Process(frame)
		}

		for i, out := range outputs {
			if err := out.WriteFrame(frame); err != nil {
				p.underruns[i].Add(1)
				p.logger.Debug("playback write failed, re-priming", "device", out.Device(), "error", err)
				if perr := out.Prepare(); perr != nil {
					p.logger.Warn("playback re-prime failed", "device", out.Device(), "error", perr)
				}
			}
		}

		p.levelMu.Lock()
		p.level = lvl
		p.levelMu.Unlock()
		p.cycles.Add(1)
	}
}

func closeStreams(capture audioio.Capture, outputs []audioio.Playback) error {
	var errs []error
	if capture != nil {
		if err := capture.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture %q: %w", capture.Device(), err))
		}
	}
	for _, out := range outputs {
		if err := out.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close playback %q: %w", out.Device(), err))
		}
	}
	return errors.Join(errs...)
}

// OutputStats contains counters for one playback stream.
type OutputStats struct {
	Device    string `json:"device"`
	Underruns int64  `json:"underruns"`
}

// Stats contains pipeline counters.
type Stats struct {
	ID         string        `json:"id"`
	Running    bool          `json:"running"`
	Cycles     int64         `json:"cycles"`
	ReadErrors int64         `json:"read_errors"`
	Outputs    []OutputStats `json:"outputs"`
	Level      audioio.Level `json:"level"`
	Uptime     float64       `json:"uptime_seconds"`
}

// Stats returns a snapshot of the pipeline counters. Safe for concurrent use.
func (p *Pipeline) Stats() Stats {
	st := Stats{
		ID:         p.id,
		Running:    p.running.Load(),
		Cycles:     p.cycles.Load(),
		ReadErrors: p.readErrors.Load(),
		Outputs:    make([]OutputStats, len(p.cfg.PlaybackDevices)),
	}
	for i, dev := range p.cfg.PlaybackDevices {
		st.Outputs[i] = OutputStats{Device: dev, Underruns: p.underruns[i].Load()}
	}

	p.levelMu.Lock()
	st.Level = p.level
	p.levelMu.Unlock()

	if st.Running {
		st.Uptime = time.Since(time.Unix(0, p.started.Load())).Seconds()
	}
	return st
}
