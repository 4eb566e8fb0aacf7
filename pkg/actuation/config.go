package actuation

import (
	"fmt"
	"time"
)

// Config holds the mouth mapper tunables. Pulses are in microseconds and
// amplitudes in raw 16-bit sample units.
type Config struct {
	// MinPulse is the closed-mouth pulse, MaxPulse fully open.
	MinPulse float64 `yaml:"min_pulse" json:"min_pulse"`
	MaxPulse float64 `yaml:"max_pulse" json:"max_pulse"`

	// DeadZone is the mean absolute amplitude below which input is silence.
	DeadZone float64 `yaml:"dead_zone" json:"dead_zone"`

	// Gain scales normalized amplitude before clipping at 1.0.
	Gain float64 `yaml:"gain" json:"gain"`

	// MaxSpeed is the slew limit in microseconds per update.
	MaxSpeed float64 `yaml:"max_speed" json:"max_speed"`

	// SmoothingFactor weights the slew-limited step (0-1].
	SmoothingFactor float64 `yaml:"smoothing_factor" json:"smoothing_factor"`

	// MovementThreshold is the minimum change worth a servo write.
	MovementThreshold float64 `yaml:"movement_threshold" json:"movement_threshold"`

	// SettleDelay is the minimum time between two committed writes.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
}

// DefaultConfig returns the tuning used on the creature's mouth servo.
func DefaultConfig() Config {
	return Config{
		MinPulse:          850,  // closed
		MaxPulse:          1300, // open
		DeadZone:          50,
		Gain:              2.0,
		MaxSpeed:          50,
		SmoothingFactor:   0.8,
		MovementThreshold: 5,
		SettleDelay:       20 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.MinPulse <= 0 || c.MaxPulse <= c.MinPulse {
		return fmt.Errorf("pulse range must satisfy 0 < min < max, got [%v, %v]", c.MinPulse, c.MaxPulse)
	}
	if c.DeadZone < 0 {
		return fmt.Errorf("dead_zone must not be negative, got %v", c.DeadZone)
	}
	if c.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %v", c.Gain)
	}
	if c.MaxSpeed <= 0 {
		return fmt.Errorf("max_speed must be positive, got %v", c.MaxSpeed)
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("smoothing_factor must be in (0, 1], got %v", c.SmoothingFactor)
	}
	if c.MovementThreshold < 0 {
		return fmt.Errorf("movement_threshold must not be negative, got %v", c.MovementThreshold)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative, got %v", c.SettleDelay)
	}
	return nil
}
