// Package audioio provides frame-oriented audio capture and playback.
//
// Streams are blocking: ReadFrame and WriteFrame each suspend for roughly
// one frame's duration. Short reads and underruns are reported as
// ErrShortRead and ErrUnderrun; callers recover with Prepare.
//
// Backends:
//   - PortAudio - production use on the Raspberry Pi (-tags portaudio, cgo)
//   - WAV - file-backed capture and playback for bench runs
//   - Mock - scripted frames for tests
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects PortAudio and fails when it is not compiled in.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for device I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendWAV reads capture from and writes playback to WAV files.
	// Device names are file paths.
	BackendWAV Backend = "wav"
	// BackendMock uses scripted in-memory streams.
	BackendMock Backend = "mock"
)

// Config holds the stream format shared by capture and playback.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of interleaved channels. The pipeline runs mono.
	Channels int `yaml:"channels" json:"channels"`

	// FrameSize is the number of samples per channel in one frame.
	FrameSize int `yaml:"frame_size" json:"frame_size"`
}

// DefaultConfig returns 48 kHz mono with 1024-sample frames.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 48000,
		Channels:   1,
		FrameSize:  1024,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// FrameDuration returns the wall-clock length of one frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(float64(c.FrameSize) / float64(c.SampleRate) * float64(time.Second))
}
