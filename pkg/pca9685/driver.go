// Package pca9685 drives the NXP PCA9685 16-channel PWM controller over I2C.
//
// The driver translates servo-level commands (pulse width in microseconds,
// angle in degrees) into the chip's 12-bit on/off tick pairs:
//
//	bus, _ := pca9685.OpenI2C("/dev/i2c-1", pca9685.DefaultAddress)
//	drv, err := pca9685.New(bus, pca9685.DefaultConfig(), logger)
//	drv.SetServoPulse(3, 1000)
//
// Initialisation errors are returned to the caller, which is expected to
// treat them as fatal. Writes after initialisation return errors but are
// never retried; the next scheduled write re-asserts the desired state.
package pca9685

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ChannelState is the last tick pair written to a channel.
type ChannelState struct {
	Index uint8  `json:"index"`
	On    uint16 `json:"on"`
	Off   uint16 `json:"off"`
}

// Driver is a PCA9685 controller bound to one bus handle.
// It is safe for concurrent use; each register sequence is serialised.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	bus      Bus
	closed   bool
	channels [NumChannels]ChannelState

	sleep func(time.Duration)
}

// Open opens the configured I2C bus and initialises the controller.
func Open(cfg Config, logger *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bus, err := OpenI2C(cfg.Bus, cfg.Address)
	if err != nil {
		return nil, err
	}

	d, err := New(bus, cfg, logger)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return d, nil
}

// New initialises a controller on an already opened bus: MODE1 is reset and
// the prescaler is programmed for cfg.Frequency.
func New(bus Bus, cfg Config, logger *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Driver{
		cfg:    cfg,
		logger: logger.With("component", "pca9685", "address", fmt.Sprintf("%#x", cfg.Address)),
		bus:    bus,
		sleep:  time.Sleep,
	}
	for i := range d.channels {
		d.channels[i].Index = uint8(i)
	}

	if err := d.Reset(); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	if err := d.SetPWMFreq(cfg.Frequency); err != nil {
		return nil, fmt.Errorf("set frequency: %w", err)
	}

	d.logger.Info("PCA9685 initialized", "bus", cfg.Bus, "frequency_hz", cfg.Frequency)
	return d, nil
}

// Reset clears MODE1, waking the oscillator with default settings.
func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeReg(RegMode1, 0x00); err != nil {
		return err
	}
	d.sleep(d.cfg.ResetDelay)
	return nil
}

// Prescale returns the prescaler value for the given PWM frequency.
func Prescale(oscillatorHz, freq float64) uint8 {
	v := math.Round(oscillatorHz/(Ticks*freq) - 1)
	return uint8(math.Max(3, math.Min(255, v)))
}

// SetPWMFreq programs the prescaler. The chip only accepts PRESCALE writes
// while asleep, so SLEEP is set around the write and the previous mode is
// restored with auto-increment enabled afterwards.
func (d *Driver) SetPWMFreq(freq float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prescale := Prescale(d.cfg.OscillatorHz, freq)

	oldMode, err := d.readReg(RegMode1)
	if err != nil {
		return err
	}
	sleepMode := (oldMode & 0x7F) | mode1Sleep

	steps := []struct {
		reg, val byte
	}{
		{RegMode1, sleepMode},
		{RegPrescale, prescale},
		{RegMode1, oldMode},
	}
	for _, s := range steps {
		if err := d.writeReg(s.reg, s.val); err != nil {
			return err
		}
	}
	d.sleep(d.cfg.WakeDelay)

	if err := d.writeReg(RegMode1, oldMode|mode1Restart); err != nil {
		return err
	}

	d.cfg.Frequency = freq
	d.logger.Debug("prescaler programmed", "frequency_hz", freq, "prescale", prescale)
	return nil
}

// SetPWM writes the on and off ticks of one channel. Ticks above 4095 are
// clamped to the counter range.
func (d *Driver) SetPWM(channel uint8, on, off uint16) error {
	if channel >= NumChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	on = min(on, MaxTick)
	off = min(off, MaxTick)

	d.mu.Lock()
	defer d.mu.Unlock()

	reg := byte(RegLED0OnL + 4*int(channel))
	vals := [4]byte{byte(on), byte(on >> 8), byte(off), byte(off >> 8)}
	for i, v := range vals {
		if err := d.writeReg(reg+byte(i), v); err != nil {
			return fmt.Errorf("channel %d: %w", channel, err)
		}
	}

	d.channels[channel].On = on
	d.channels[channel].Off = off
	return nil
}

// PulseTicks converts a pulse width in microseconds to off ticks.
func (d *Driver) PulseTicks(micros float64) uint16 {
	d.mu.Lock()
	cycle := d.cfg.CycleMicros()
	d.mu.Unlock()
	return microsToTicks(micros, cycle)
}

func microsToTicks(micros, cycle float64) uint16 {
	t := math.Round(micros / cycle * Ticks)
	return uint16(math.Max(0, math.Min(MaxTick, t)))
}

// SetServoPulse drives a channel with a pulse of the given width.
func (d *Driver) SetServoPulse(channel uint8, micros float64) error {
	return d.SetPWM(channel, 0, d.PulseTicks(micros))
}

// AngleTicks maps degrees to off ticks across the 1-2 ms servo window.
// Angles outside 0-180 are clamped first.
func (d *Driver) AngleTicks(degrees float64) uint16 {
	d.mu.Lock()
	cycle := d.cfg.CycleMicros()
	d.mu.Unlock()

	degrees = math.Max(0, math.Min(180, degrees))
	lo := float64(microsToTicks(1000, cycle))
	hi := float64(microsToTicks(2000, cycle))
	return uint16(math.Round(lo + degrees/180*(hi-lo)))
}

// SetServoAngle drives a channel to the given angle.
func (d *Driver) SetServoAngle(channel uint8, degrees float64) error {
	return d.SetPWM(channel, 0, d.AngleTicks(degrees))
}

// Channel returns the last state written to a channel.
func (d *Driver) Channel(channel uint8) ChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if channel >= NumChannels {
		return ChannelState{Index: channel}
	}
	return d.channels[channel]
}

// Servo returns a handle bound to one channel.
func (d *Driver) Servo(channel uint8) *Servo {
	return &Servo{drv: d, channel: channel}
}

// Close releases the bus. Further writes return ErrClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.bus.Close()
}

func (d *Driver) writeReg(reg, val byte) error {
	if d.closed {
		return ErrClosed
	}
	if err := d.bus.Tx([]byte{reg, val}, nil); err != nil {
		return fmt.Errorf("write reg %#02x: %w", reg, err)
	}
	return nil
}

func (d *Driver) readReg(reg byte) (byte, error) {
	if d.closed {
		return 0, ErrClosed
	}
	var buf [1]byte
	if err := d.bus.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("read reg %#02x: %w", reg, err)
	}
	return buf[0], nil
}

// Servo is one channel of a Driver.
type Servo struct {
	drv     *Driver
	channel uint8
}

// SetPulse drives the servo with a pulse width in microseconds.
func (s *Servo) SetPulse(micros float64) error {
	return s.drv.SetServoPulse(s.channel, micros)
}

// SetAngle drives the servo to an angle in degrees.
func (s *Servo) SetAngle(degrees float64) error {
	return s.drv.SetServoAngle(s.channel, degrees)
}

// Channel returns the channel index.
func (s *Servo) Channel() uint8 {
	return s.channel
}
