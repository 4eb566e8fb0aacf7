package stretch

import "fmt"

// MinHistoryFrames is the smallest history that lets the read cursor run
// ahead of or behind the write position by a frame.
const MinHistoryFrames = 2

// Config holds the time-stretch tunables.
type Config struct {
	// Threshold is the normalized amplitude (0-1) below which playback
	// runs at unity speed.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// Sensitivity scales amplitude above Threshold into extra speed.
	Sensitivity float64 `yaml:"sensitivity" json:"sensitivity"`

	// MinSpeed and MaxSpeed bound the playback rate.
	MinSpeed float64 `yaml:"min_speed" json:"min_speed"`
	MaxSpeed float64 `yaml:"max_speed" json:"max_speed"`

	// SpeedSmoothing is the per-frame step of the current speed toward the
	// target (0-1]. Kept well below the mouth smoothing to avoid zipper noise.
	SpeedSmoothing float64 `yaml:"speed_smoothing" json:"speed_smoothing"`

	// HistoryFrames bounds the sample history to this many frames.
	HistoryFrames int `yaml:"history_frames" json:"history_frames"`
}

// DefaultConfig returns the tuning at effect amount 1.0.
func DefaultConfig() Config {
	return WithAmount(1.0)
}

// WithAmount derives a configuration from a single effect intensity.
// 0 approaches a pass-through, 1 is the stock tuning. MinSpeed never rises
// above unity so silence always plays back at normal speed.
func WithAmount(amount float64) Config {
	return Config{
		Threshold:      0.02 / max(0.0001, amount),
		Sensitivity:    1.5 * amount,
		MinSpeed:       min(1, 0.6/max(0.1, amount)),
		MaxSpeed:       1.0 + 0.8*amount,
		SpeedSmoothing: 0.12,
		HistoryFrames:  max(MinHistoryFrames, int(8*amount)),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative, got %v", c.Threshold)
	}
	if c.Sensitivity < 0 {
		return fmt.Errorf("sensitivity must not be negative, got %v", c.Sensitivity)
	}
	if c.MinSpeed <= 0 || c.MaxSpeed < c.MinSpeed {
		return fmt.Errorf("speed range must satisfy 0 < min <= max, got [%v, %v]", c.MinSpeed, c.MaxSpeed)
	}
	if c.MinSpeed > 1 || c.MaxSpeed < 1 {
		return fmt.Errorf("speed range [%v, %v] must contain 1.0", c.MinSpeed, c.MaxSpeed)
	}
	if c.SpeedSmoothing <= 0 || c.SpeedSmoothing > 1 {
		return fmt.Errorf("speed_smoothing must be in (0, 1], got %v", c.SpeedSmoothing)
	}
	if c.HistoryFrames < MinHistoryFrames {
		return fmt.Errorf("history_frames must be at least %d, got %d", MinHistoryFrames, c.HistoryFrames)
	}
	return nil
}
