// Package actuation maps audio amplitude onto a servo pulse.
//
// The Mapper is a dead-zoned, slew-limited, hysteretic first-order filter:
// quiet frames hold position, loud frames pull the pulse toward a target
// proportional to amplitude, and small corrections are suppressed so the
// servo does not chatter.
package actuation

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-taro/pkg/audioio"
)

// State is the mapper's position in its update cycle.
type State int32

const (
	// StateIdle means the last frame was inside the dead zone.
	StateIdle State = iota
	// StateTracking means the mapper is following the amplitude target.
	StateTracking
	// StateSettling means a write was committed and the settle delay has
	// not yet elapsed.
	StateSettling
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateSettling:
		return "settling"
	}
	return "unknown"
}

// PulseWriter commands a servo by pulse width in microseconds.
type PulseWriter interface {
	SetPulse(micros float64) error
}

// Stats contains mapper counters.
type Stats struct {
	Frames      int64   `json:"frames"`
	Writes      int64   `json:"writes"`
	WriteErrors int64   `json:"write_errors"`
	Pulse       float64 `json:"pulse"`
	State       string  `json:"state"`
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithClock overrides the time source used for the settle delay.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// Mapper converts audio frames into servo pulse commands.
//
// HandleFrame must only be called from one goroutine (the pipeline's).
// Pulse, State and Stats are safe to call from anywhere.
type Mapper struct {
	cfg    Config
	servo  PulseWriter
	logger *slog.Logger
	now    func() time.Time

	prev        float64
	settleUntil time.Time

	pulse       atomic.Uint64 // math.Float64bits of prev
	state       atomic.Int32
	frames      atomic.Int64
	writes      atomic.Int64
	writeErrors atomic.Int64
}

// New creates a mapper that starts at cfg.MinPulse. It does not write to the
// servo; callers drive the closed position explicitly.
func New(cfg Config, servo PulseWriter, opts ...Option) (*Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if servo == nil {
		return nil, fmt.Errorf("servo is required")
	}

	m := &Mapper{
		cfg:    cfg,
		servo:  servo,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "actuation")
	m.commit(cfg.MinPulse)
	return m, nil
}

// HandleFrame inspects one frame and may issue a servo write.
func (m *Mapper) HandleFrame(frame []int16) {
	if len(frame) == 0 {
		return
	}
	m.frames.Add(1)

	amp := audioio.MeanAbs(frame)
	if amp < m.cfg.DeadZone {
		m.state.Store(int32(StateIdle))
		return
	}

	now := m.now()
	if now.Before(m.settleUntil) {
		m.state.Store(int32(StateSettling))
		return
	}
	m.state.Store(int32(StateTracking))

	next, ok := m.Step(amp)
	if !ok {
		return
	}

	m.commit(next)
	m.settleUntil = now.Add(m.cfg.SettleDelay)
	m.state.Store(int32(StateSettling))

	m.writes.Add(1)
	if err := m.servo.SetPulse(next); err != nil {
		m.writeErrors.Add(1)
		m.logger.Warn("servo write failed", "pulse", next, "error", err)
	}
}

// Step computes the next pulse for a mean absolute amplitude without
// touching state. ok is false when the change is within the movement
// threshold.
func (m *Mapper) Step(amp float64) (next float64, ok bool) {
	c := m.cfg
	norm := math.Min(amp/audioio.FullScale*c.Gain, 1)
	target := c.MinPulse + norm*(c.MaxPulse-c.MinPulse)

	delta := clamp(target-m.prev, -c.MaxSpeed, c.MaxSpeed)
	next = clamp(m.prev+delta*c.SmoothingFactor, c.MinPulse, c.MaxPulse)

	if math.Abs(next-m.prev) <= c.MovementThreshold {
		return m.prev, false
	}
	return next, true
}

// Reset returns the committed pulse to the closed position and clears the
// settle window. The servo is not written.
func (m *Mapper) Reset() {
	m.commit(m.cfg.MinPulse)
	m.settleUntil = time.Time{}
	m.state.Store(int32(StateIdle))
}

// Pulse returns the last committed pulse width.
func (m *Mapper) Pulse() float64 {
	return math.Float64frombits(m.pulse.Load())
}

// State returns the mapper state after the last frame.
func (m *Mapper) State() State {
	return State(m.state.Load())
}

// Config returns the mapper configuration.
func (m *Mapper) Config() Config {
	return m.cfg
}

// Stats returns mapper counters.
func (m *Mapper) Stats() Stats {
	return Stats{
		Frames:      m.frames.Load(),
		Writes:      m.writes.Load(),
		WriteErrors: m.writeErrors.Load(),
		Pulse:       m.Pulse(),
		State:       m.State().String(),
	}
}

func (m *Mapper) commit(p float64) {
	m.prev = p
	m.pulse.Store(math.Float64bits(p))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
