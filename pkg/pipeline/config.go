package pipeline

import (
	"errors"
	"fmt"
)

// MaxPlaybacks is the number of output streams a pipeline can drive.
const MaxPlaybacks = 2

// Config holds the device names a pipeline opens.
type Config struct {
	// CaptureDevice is the microphone device name.
	CaptureDevice string `yaml:"capture_device" json:"capture_device"`

	// PlaybackDevices are the output device names (one or two).
	PlaybackDevices []string `yaml:"playback_devices" json:"playback_devices"`
}

// DefaultConfig returns a pipeline on the default capture and playback devices.
func DefaultConfig() Config {
	return Config{
		CaptureDevice:   "default",
		PlaybackDevices: []string{"default"},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.CaptureDevice == "" {
		return errors.New("capture_device is required")
	}
	if len(c.PlaybackDevices) == 0 || len(c.PlaybackDevices) > MaxPlaybacks {
		return fmt.Errorf("playback_devices must list 1 to %d devices, got %d", MaxPlaybacks, len(c.PlaybackDevices))
	}
	seen := make(map[string]bool, len(c.PlaybackDevices))
	for i, d := range c.PlaybackDevices {
		if d == "" {
			return fmt.Errorf("playback_devices[%d] is empty", i)
		}
		if seen[d] {
			return fmt.Errorf("playback_devices lists %q twice", d)
		}
		seen[d] = true
	}
	return nil
}
