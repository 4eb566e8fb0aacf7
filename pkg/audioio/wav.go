package audioio

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavOpener reads capture audio from WAV files and records playback to
// WAV files. Capture is paced at the frame rate and loops at end of file.
type wavOpener struct {
	cfg    Config
	logger *slog.Logger
}

func newWAVOpener(cfg Config, logger *slog.Logger) *wavOpener {
	return &wavOpener{cfg: cfg, logger: logger}
}

// LoadWAV decodes a 16-bit WAV file to mono samples at sampleRate.
func LoadWAV(path string, sampleRate int) ([]int16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%s: expected 16-bit PCM, got %d-bit", path, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	mono := DownmixInts(buf.Data, buf.Format.NumChannels)
	return Resample(mono, buf.Format.SampleRate, sampleRate), nil
}

func (o *wavOpener) OpenCapture(device string) (Capture, error) {
	samples, err := LoadWAV(device, o.cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", device, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("open capture %q: no samples", device)
	}

	o.logger.Info("WAV capture opened",
		"device", device,
		"samples", len(samples),
		"seconds", float64(len(samples))/float64(o.cfg.SampleRate),
	)
	return &wavCapture{
		device:   device,
		samples:  samples,
		interval: o.cfg.FrameDuration(),
	}, nil
}

func (o *wavOpener) OpenPlayback(device string) (Playback, error) {
	f, err := os.Create(device)
	if err != nil {
		return nil, fmt.Errorf("open playback %q: %w", device, err)
	}

	o.logger.Info("WAV playback opened", "device", device)
	return &wavPlayback{
		device: device,
		file:   f,
		enc:    wav.NewEncoder(f, o.cfg.SampleRate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: o.cfg.SampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (o *wavOpener) Close() error {
	return nil
}

type wavCapture struct {
	device   string
	samples  []int16
	interval time.Duration

	mu     sync.Mutex
	pos    int
	next   time.Time
	closed bool

	frames atomic.Int64
	primes atomic.Int64
}

func (c *wavCapture) ReadFrame(frame []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	now := time.Now()
	if c.next.IsZero() {
		c.next = now
	}
	if wait := c.next.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
	c.next = c.next.Add(c.interval)

	for i := range frame {
		frame[i] = c.samples[c.pos]
		c.pos = (c.pos + 1) % len(c.samples)
	}
	c.frames.Add(1)
	return nil
}

// Prepare resets the pacing clock.
func (c *wavCapture) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = time.Time{}
	c.primes.Add(1)
	return nil
}

func (c *wavCapture) Device() string {
	return c.device
}

func (c *wavCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *wavCapture) Stats() StreamStats {
	return StreamStats{
		Device:  c.device,
		Frames:  c.frames.Load(),
		Primes:  c.primes.Load(),
		Backend: string(BackendWAV),
	}
}

type wavPlayback struct {
	device string

	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer
	closed bool

	frames atomic.Int64
	errors atomic.Int64
	primes atomic.Int64
}

func (p *wavPlayback) WriteFrame(frame []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if cap(p.buf.Data) < len(frame) {
		p.buf.Data = make([]int, len(frame))
	}
	p.buf.Data = p.buf.Data[:len(frame)]
	for i, s := range frame {
		p.buf.Data[i] = int(s)
	}

	if err := p.enc.Write(p.buf); err != nil {
		p.errors.Add(1)
		return fmt.Errorf("%w: %v", ErrUnderrun, err)
	}
	p.frames.Add(1)
	return nil
}

func (p *wavPlayback) Prepare() error {
	p.primes.Add(1)
	return nil
}

func (p *wavPlayback) Device() string {
	return p.device
}

// Close finalises the WAV header and closes the file.
func (p *wavPlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	encErr := p.enc.Close()
	fileErr := p.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize %s: %w", p.device, encErr)
	}
	return fileErr
}

func (p *wavPlayback) Stats() StreamStats {
	return StreamStats{
		Device:  p.device,
		Frames:  p.frames.Load(),
		Errors:  p.errors.Load(),
		Primes:  p.primes.Load(),
		Backend: string(BackendWAV),
	}
}

var (
	_ Capture  = (*wavCapture)(nil)
	_ Playback = (*wavPlayback)(nil)
)
