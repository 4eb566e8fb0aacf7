// Package mouth wires a microphone to the creature's jaw servo.
//
// A Mouth owns one audio pipeline whose frame handler is an actuation
// Mapper and whose effect is a time-stretch Effect. The jaw is driven to
// its closed pulse when the Mouth is built and again when it stops.
package mouth

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-taro/pkg/actuation"
	"github.com/teslashibe/go-taro/pkg/audioio"
	"github.com/teslashibe/go-taro/pkg/pipeline"
	"github.com/teslashibe/go-taro/pkg/stretch"
)

// DefaultChannel is the PCA9685 channel the jaw servo is wired to.
const DefaultChannel = 3

// Config holds everything needed to build a Mouth.
type Config struct {
	// Channel is the jaw servo channel.
	Channel uint8 `yaml:"channel" json:"channel"`

	Pipeline pipeline.Config  `yaml:"pipeline" json:"pipeline"`
	Mapper   actuation.Config `yaml:"mapper" json:"mapper"`

	// StretchEnabled turns the playback time-stretch on.
	StretchEnabled bool           `yaml:"stretch_enabled" json:"stretch_enabled"`
	Stretch        stretch.Config `yaml:"stretch" json:"stretch"`
}

// DefaultConfig returns the creature's jaw setup with stretch enabled.
func DefaultConfig() Config {
	return Config{
		Channel:        DefaultChannel,
		Pipeline:       pipeline.DefaultConfig(),
		Mapper:         actuation.DefaultConfig(),
		StretchEnabled: true,
		Stretch:        stretch.DefaultConfig(),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Mapper.Validate(); err != nil {
		return fmt.Errorf("mapper: %w", err)
	}
	if c.StretchEnabled {
		if err := c.Stretch.Validate(); err != nil {
			return fmt.Errorf("stretch: %w", err)
		}
	}
	return nil
}

// Option configures a Mouth.
type Option func(*options)

type options struct {
	logger *slog.Logger
	clock  func() time.Time
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the mapper's settle-delay clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// Mouth is the audio-reactive jaw.
type Mouth struct {
	cfg    Config
	servo  actuation.PulseWriter
	mapper *actuation.Mapper
	effect *stretch.Effect
	pipe   *pipeline.Pipeline
	logger *slog.Logger

	mu     sync.Mutex
	paused bool
}

// New builds a Mouth and closes the jaw. The pipeline is not started.
func New(cfg Config, servo actuation.PulseWriter, format audioio.Config, opener audioio.Opener, opts ...Option) (*Mouth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if servo == nil {
		return nil, errors.New("mouth: servo is required")
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "mouth", "channel", cfg.Channel)

	mapperOpts := []actuation.Option{actuation.WithLogger(logger)}
	if o.clock != nil {
		mapperOpts = append(mapperOpts, actuation.WithClock(o.clock))
	}
	mapper, err := actuation.New(cfg.Mapper, servo, mapperOpts...)
	if err != nil {
		return nil, fmt.Errorf("mapper: %w", err)
	}

	m := &Mouth{
		cfg:    cfg,
		servo:  servo,
		mapper: mapper,
		logger: logger,
	}

	pipeOpts := []pipeline.Option{pipeline.WithLogger(o.logger)}
	if cfg.StretchEnabled {
		m.effect, err = stretch.New(cfg.Stretch)
		if err != nil {
			return nil, fmt.Errorf("stretch: %w", err)
		}
		pipeOpts = append(pipeOpts, pipeline.WithEffect(m.effect))
	}

	m.pipe, err = pipeline.New(cfg.Pipeline, format, opener, mapper, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	m.close()
	return m, nil
}

// Start starts the audio pipeline.
func (m *Mouth) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pipe.Start(); err != nil {
		return err
	}
	m.paused = false
	return nil
}

// Stop stops the pipeline and closes the jaw. Safe to call repeatedly.
func (m *Mouth) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.pipe.Stop()
	m.paused = false
	m.mapper.Reset()
	m.close()
	return err
}

// Pause stops the pipeline and leaves the jaw where it is.
func (m *Mouth) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pipe.Running() {
		return nil
	}
	if err := m.pipe.Stop(); err != nil {
		return err
	}
	m.paused = true
	m.logger.Info("mouth paused", "pulse", m.mapper.Pulse())
	return nil
}

// Resume restarts a paused pipeline. It is a no-op unless paused.
func (m *Mouth) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.paused {
		return nil
	}
	if err := m.pipe.Start(); err != nil {
		return err
	}
	m.paused = false
	m.logger.Info("mouth resumed")
	return nil
}

// Paused reports whether the mouth is paused.
func (m *Mouth) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Running reports whether the pipeline is running.
func (m *Mouth) Running() bool {
	return m.pipe.Running()
}

// Pulse returns the last committed jaw pulse in microseconds.
func (m *Mouth) Pulse() float64 {
	return m.mapper.Pulse()
}

// close drives the jaw to the closed pulse. Failures are logged only.
func (m *Mouth) close() {
	if err := m.servo.SetPulse(m.cfg.Mapper.MinPulse); err != nil {
		m.logger.Warn("failed to close mouth", "pulse", m.cfg.Mapper.MinPulse, "error", err)
	}
}

// Stats contains a snapshot of the mouth subsystems.
type Stats struct {
	Pulse    float64         `json:"pulse"`
	State    string          `json:"state"`
	Paused   bool            `json:"paused"`
	Mapper   actuation.Stats `json:"mapper"`
	Stretch  *stretch.Stats  `json:"stretch,omitempty"`
	Pipeline pipeline.Stats  `json:"pipeline"`
}

// Stats returns a snapshot. Safe for concurrent use.
func (m *Mouth) Stats() Stats {
	st := Stats{
		Pulse:    m.mapper.Pulse(),
		State:    m.mapper.State().String(),
		Paused:   m.Paused(),
		Mapper:   m.mapper.Stats(),
		Pipeline: m.pipe.Stats(),
	}
	if m.effect != nil {
		es := m.effect.Stats()
		st.Stretch = &es
	}
	return st
}
