package pca9685

import (
	"fmt"
	"time"
)

// Register map and device constants.
const (
	DefaultAddress = 0x40

	RegMode1    = 0x00
	RegPrescale = 0xFE
	RegLED0OnL  = 0x06

	// Ticks is the number of steps in one PWM cycle (12-bit counter).
	Ticks = 4096

	// MaxTick is the largest on/off tick value.
	MaxTick = Ticks - 1

	// NumChannels is the number of PWM outputs on the chip.
	NumChannels = 16

	mode1Sleep   = 0x10
	mode1Restart = 0xA1 // RESTART | AI | ALLCALL
)

// Config holds bus and timing parameters for the controller.
type Config struct {
	// Bus is the I2C bus name passed to periph (e.g. "1", "/dev/i2c-1").
	// Empty selects the first available bus.
	Bus string `yaml:"bus" json:"bus"`

	// Address is the 7-bit device address.
	Address uint16 `yaml:"address" json:"address"`

	// Frequency is the PWM frequency in Hz (50 for hobby servos).
	Frequency float64 `yaml:"frequency" json:"frequency"`

	// OscillatorHz is the chip's internal clock.
	OscillatorHz float64 `yaml:"oscillator_hz" json:"oscillator_hz"`

	// ResetDelay and WakeDelay are the settle times after MODE1 writes.
	ResetDelay time.Duration `yaml:"reset_delay" json:"reset_delay"`
	WakeDelay  time.Duration `yaml:"wake_delay" json:"wake_delay"`
}

// DefaultConfig returns settings for a PCA9685 breakout driving servos.
func DefaultConfig() Config {
	return Config{
		Bus:          "/dev/i2c-1",
		Address:      DefaultAddress,
		Frequency:    50,
		OscillatorHz: 25_000_000,
		ResetDelay:   10 * time.Millisecond,
		WakeDelay:    5 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7F {
		return fmt.Errorf("address must be a 7-bit value, got %#x", c.Address)
	}
	// Prescaler is an 8-bit register clamped to 3..255 by the chip.
	if c.Frequency < 24 || c.Frequency > 1526 {
		return fmt.Errorf("frequency must be within 24-1526 Hz, got %v", c.Frequency)
	}
	if c.OscillatorHz <= 0 {
		return fmt.Errorf("oscillator_hz must be positive, got %v", c.OscillatorHz)
	}
	return nil
}

// CycleMicros returns the length of one PWM period in microseconds.
func (c *Config) CycleMicros() float64 {
	return 1e6 / c.Frequency
}
