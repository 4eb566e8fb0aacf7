package audioio

import (
	"errors"
	"io"
)

var (
	// ErrShortRead is returned when a capture read delivers less than a
	// full frame (overrun, xrun, device hiccup).
	ErrShortRead = errors.New("audioio: short read")

	// ErrUnderrun is returned when playback ran dry before the write.
	ErrUnderrun = errors.New("audioio: underrun")

	// ErrClosed is returned when using a closed stream.
	ErrClosed = errors.New("audioio: stream closed")

	// ErrNoDeviceBackend is returned when the auto backend finds no device
	// backend in this build. Build with -tags portaudio, or pick the wav or
	// mock backend explicitly.
	ErrNoDeviceBackend = errors.New("audioio: no device backend compiled in (build with -tags portaudio)")
)

// Capture is an open input stream.
type Capture interface {
	// ReadFrame fills frame with the next len(frame) samples, blocking up
	// to about one frame. A partial fill returns ErrShortRead.
	ReadFrame(frame []int16) error

	// Prepare re-primes the stream after an error.
	Prepare() error

	// Device returns the device name the stream was opened on.
	Device() string

	io.Closer
}

// Playback is an open output stream.
type Playback interface {
	// WriteFrame queues frame for output, blocking while the device
	// buffer is full. ErrUnderrun means the device ran dry first.
	WriteFrame(frame []int16) error

	// Prepare re-primes the stream after an error.
	Prepare() error

	// Device returns the device name the stream was opened on.
	Device() string

	io.Closer
}

// StreamStats contains counters for one stream.
type StreamStats struct {
	Device  string `json:"device"`
	Frames  int64  `json:"frames"`
	Errors  int64  `json:"errors"`
	Primes  int64  `json:"primes"`
	Backend string `json:"backend"`
}

// StatsProvider is implemented by streams that track counters.
type StatsProvider interface {
	Stats() StreamStats
}
