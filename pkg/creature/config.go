// Package creature drives the non-audio servos: the neck and the wings,
// plus an idle behaviour scheduler that moves them at random.
package creature

import (
	"errors"
	"fmt"
	"time"
)

// PulseWriter commands a servo by pulse width in microseconds.
type PulseWriter interface {
	SetPulse(micros float64) error
}

// AngleWriter commands a servo by angle in degrees.
type AngleWriter interface {
	SetAngle(degrees float64) error
}

// NeckConfig holds the head-turn servo tuning.
type NeckConfig struct {
	Channel uint8   `yaml:"channel" json:"channel"`
	Center  float64 `yaml:"center" json:"center"`
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`

	// Step is the target change per TurnLeft or TurnRight.
	Step float64 `yaml:"step" json:"step"`

	// Smoothing is the fraction of the remaining distance covered per Update.
	Smoothing float64 `yaml:"smoothing" json:"smoothing"`
}

// DefaultNeckConfig returns the neck servo on channel 2.
func DefaultNeckConfig() NeckConfig {
	return NeckConfig{
		Channel:   2,
		Center:    1500,
		Min:       500,
		Max:       2500,
		Step:      80,
		Smoothing: 0.2,
	}
}

// Validate checks that the configuration is valid.
func (c *NeckConfig) Validate() error {
	if c.Min >= c.Max {
		return fmt.Errorf("min (%v) must be below max (%v)", c.Min, c.Max)
	}
	if c.Center < c.Min || c.Center > c.Max {
		return fmt.Errorf("center %v outside [%v, %v]", c.Center, c.Min, c.Max)
	}
	if c.Step <= 0 {
		return errors.New("step must be positive")
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %v", c.Smoothing)
	}
	return nil
}

// WingConfig is one wing's channel and its up and down angles.
type WingConfig struct {
	Channel uint8   `yaml:"channel" json:"channel"`
	Up      float64 `yaml:"up" json:"up"`
	Down    float64 `yaml:"down" json:"down"`
}

// WingsConfig holds both wings and the flap timing.
type WingsConfig struct {
	Left  WingConfig `yaml:"left" json:"left"`
	Right WingConfig `yaml:"right" json:"right"`

	// Hold is how long the wings stay up during a flap.
	Hold time.Duration `yaml:"hold" json:"hold"`

	// Cooldown is the minimum time between the starts of two flaps.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`
}

// DefaultWingsConfig returns the wings on channels 0 and 1. The servos are
// mounted mirrored, so the right wing's angles run the other way.
func DefaultWingsConfig() WingsConfig {
	return WingsConfig{
		Left:     WingConfig{Channel: 0, Up: 160, Down: 60},
		Right:    WingConfig{Channel: 1, Up: 80, Down: 180},
		Hold:     600 * time.Millisecond,
		Cooldown: 2 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *WingsConfig) Validate() error {
	for _, w := range []WingConfig{c.Left, c.Right} {
		if w.Up < 0 || w.Up > 180 || w.Down < 0 || w.Down > 180 {
			return fmt.Errorf("wing on channel %d: angles must be in [0, 180]", w.Channel)
		}
	}
	if c.Left.Channel == c.Right.Channel {
		return errors.New("wings must use different channels")
	}
	if c.Hold < 0 || c.Cooldown < 0 {
		return errors.New("hold and cooldown must not be negative")
	}
	return nil
}

// IdleConfig tunes the random idle behaviour.
type IdleConfig struct {
	// Enabled starts the scheduler active.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Level is the activity level from 1 (calm) to 10 (restless).
	Level int `yaml:"level" json:"level"`

	// Positions are the neck pulses idle glances pick from.
	Positions []float64 `yaml:"positions" json:"positions"`
}

// Activity level bounds.
const (
	MinLevel = 1
	MaxLevel = 10
)

// DefaultIdleConfig returns a medium activity level.
func DefaultIdleConfig() IdleConfig {
	return IdleConfig{
		Level:     5,
		Positions: []float64{600, 900, 1500, 2100, 2400},
	}
}

// Validate checks that the configuration is valid.
func (c *IdleConfig) Validate() error {
	if c.Level < MinLevel || c.Level > MaxLevel {
		return fmt.Errorf("level must be in [%d, %d], got %d", MinLevel, MaxLevel, c.Level)
	}
	if len(c.Positions) == 0 {
		return errors.New("at least one neck position is required")
	}
	return nil
}
