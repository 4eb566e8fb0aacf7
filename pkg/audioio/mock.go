package audioio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// FrameFunc fills a frame with synthetic audio. n is the frame index.
type FrameFunc func(frame []int16, n int64)

// Silence leaves frames zeroed.
func Silence(frame []int16, _ int64) {
	clear(frame)
}

// Constant returns a square wave of fixed magnitude amp, so the mean
// absolute amplitude of every frame is exactly amp.
func Constant(amp int16) FrameFunc {
	return func(frame []int16, _ int64) {
		for i := range frame {
			if i%2 == 0 {
				frame[i] = amp
			} else {
				frame[i] = -amp
			}
		}
	}
}

// Sine returns a sine generator (amplitude 0.0 to 1.0 of full scale).
func Sine(frequency, amplitude float64, sampleRate int) FrameFunc {
	var phase float64
	step := 2 * math.Pi * frequency / float64(sampleRate)
	return func(frame []int16, _ int64) {
		for i := range frame {
			frame[i] = int16(amplitude * 32767 * math.Sin(phase))
			phase += step
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
	}
}

// MockCapture is a scripted capture stream for tests.
type MockCapture struct {
	device   string
	interval time.Duration

	mu       sync.Mutex
	generate FrameFunc
	failures []bool // pending read outcomes; true = short read
	closed   bool

	n      int64
	frames atomic.Int64
	errors atomic.Int64
	primes atomic.Int64
}

// MockCaptureOption configures a MockCapture.
type MockCaptureOption func(*MockCapture)

// WithFrames sets the frame generator.
func WithFrames(fn FrameFunc) MockCaptureOption {
	return func(m *MockCapture) {
		m.generate = fn
	}
}

// WithInterval makes every read block for d, like a device clock.
func WithInterval(d time.Duration) MockCaptureOption {
	return func(m *MockCapture) {
		m.interval = d
	}
}

// NewMockCapture creates a mock capture stream producing silence.
func NewMockCapture(device string, opts ...MockCaptureOption) *MockCapture {
	m := &MockCapture{
		device:   device,
		generate: Silence,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailReads makes the next n reads return ErrShortRead.
func (m *MockCapture) FailReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, true)
	}
}

// SetFrames replaces the frame generator.
func (m *MockCapture) SetFrames(fn FrameFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generate = fn
}

// ReadFrame produces the next scripted frame.
func (m *MockCapture) ReadFrame(frame []int16) error {
	if m.interval > 0 {
		time.Sleep(m.interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if len(m.failures) > 0 {
		m.failures = m.failures[1:]
		m.errors.Add(1)
		return fmt.Errorf("%w: scripted failure", ErrShortRead)
	}

	m.generate(frame, m.n)
	m.n++
	m.frames.Add(1)
	return nil
}

// Prepare counts re-primes.
func (m *MockCapture) Prepare() error {
	m.primes.Add(1)
	return nil
}

// Device returns the device name.
func (m *MockCapture) Device() string {
	return m.device
}

// Close marks the stream closed.
func (m *MockCapture) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockCapture) reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// Closed reports whether Close was called.
func (m *MockCapture) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns stream counters.
func (m *MockCapture) Stats() StreamStats {
	return StreamStats{
		Device:  m.device,
		Frames:  m.frames.Load(),
		Errors:  m.errors.Load(),
		Primes:  m.primes.Load(),
		Backend: string(BackendMock),
	}
}

// MockPlayback records written frames.
type MockPlayback struct {
	device string

	mu        sync.Mutex
	written   [][]int16
	underruns int
	closed    bool
	keep      int

	frames atomic.Int64
	errors atomic.Int64
	primes atomic.Int64
}

// NewMockPlayback creates a mock playback stream that keeps the last 64 frames.
func NewMockPlayback(device string) *MockPlayback {
	return &MockPlayback{device: device, keep: 64}
}

// FailWrites makes the next n writes return ErrUnderrun.
func (m *MockPlayback) FailWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.underruns += n
}

// WriteFrame stores a copy of frame.
func (m *MockPlayback) WriteFrame(frame []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.underruns > 0 {
		m.underruns--
		m.errors.Add(1)
		return fmt.Errorf("%w: scripted underrun", ErrUnderrun)
	}

	m.written = append(m.written, append([]int16(nil), frame...))
	if len(m.written) > m.keep {
		m.written = m.written[1:]
	}
	m.frames.Add(1)
	return nil
}

// Written returns the retained frames, oldest first.
func (m *MockPlayback) Written() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int16(nil), m.written...)
}

// Prepare counts re-primes.
func (m *MockPlayback) Prepare() error {
	m.primes.Add(1)
	return nil
}

// Device returns the device name.
func (m *MockPlayback) Device() string {
	return m.device
}

// Close marks the stream closed.
func (m *MockPlayback) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockPlayback) reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

// Closed reports whether Close was called.
func (m *MockPlayback) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns stream counters.
func (m *MockPlayback) Stats() StreamStats {
	return StreamStats{
		Device:  m.device,
		Frames:  m.frames.Load(),
		Errors:  m.errors.Load(),
		Primes:  m.primes.Load(),
		Backend: string(BackendMock),
	}
}

// MockOpener hands out mock streams by device name. Streams that were not
// registered are created on first open; closed streams are reopened.
type MockOpener struct {
	cfg Config

	mu        sync.Mutex
	captures  map[string]*MockCapture
	playbacks map[string]*MockPlayback
	failOpen  map[string]error
	opens     int
	interval  time.Duration
}

// NewMockOpener creates an empty mock opener.
func NewMockOpener(cfg Config) *MockOpener {
	return &MockOpener{
		cfg:       cfg,
		captures:  make(map[string]*MockCapture),
		playbacks: make(map[string]*MockPlayback),
		failOpen:  make(map[string]error),
	}
}

// SetInterval paces captures created on first open so each read blocks
// for d.
func (o *MockOpener) SetInterval(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interval = d
}

// AddCapture registers a capture stream.
func (o *MockOpener) AddCapture(c *MockCapture) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.captures[c.Device()] = c
}

// AddPlayback registers a playback stream.
func (o *MockOpener) AddPlayback(p *MockPlayback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playbacks[p.Device()] = p
}

// FailOpen makes opening device return err.
func (o *MockOpener) FailOpen(device string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failOpen[device] = err
}

// Capture returns the registered capture for device, if any.
func (o *MockOpener) Capture(device string) *MockCapture {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.captures[device]
}

// Playback returns the registered playback for device, if any.
func (o *MockOpener) Playback(device string) *MockPlayback {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playbacks[device]
}

// Opens returns how many streams were successfully opened.
func (o *MockOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *MockOpener) OpenCapture(device string) (Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.failOpen[device]; err != nil {
		return nil, err
	}
	c, ok := o.captures[device]
	if !ok {
		c = NewMockCapture(device, WithInterval(o.interval))
		o.captures[device] = c
	}
	c.reopen()
	o.opens++
	return c, nil
}

func (o *MockOpener) OpenPlayback(device string) (Playback, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.failOpen[device]; err != nil {
		return nil, err
	}
	p, ok := o.playbacks[device]
	if !ok {
		p = NewMockPlayback(device)
		o.playbacks[device] = p
	}
	p.reopen()
	o.opens++
	return p, nil
}

// Close is a no-op.
func (o *MockOpener) Close() error {
	return nil
}

var (
	_ Capture       = (*MockCapture)(nil)
	_ Playback      = (*MockPlayback)(nil)
	_ StatsProvider = (*MockCapture)(nil)
	_ StatsProvider = (*MockPlayback)(nil)
	_ Opener        = (*MockOpener)(nil)
)
