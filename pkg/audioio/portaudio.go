//go:build portaudio

package audioio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portAudioAvailable = true

// paOpener opens PortAudio blocking streams.
type paOpener struct {
	cfg    Config
	logger *slog.Logger
}

func newPortAudioOpener(cfg Config, logger *slog.Logger) (Opener, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	logger.Info("PortAudio initialized", "version", portaudio.VersionText())
	return &paOpener{cfg: cfg, logger: logger}, nil
}

// findDevice resolves a device by exact name, then by substring.
// "default" or "" selects the host default.
func findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	usable := func(d *portaudio.DeviceInfo) bool {
		if input {
			return d.MaxInputChannels > 0
		}
		return d.MaxOutputChannels > 0
	}
	for _, d := range devices {
		if d.Name == name && usable(d) {
			return d, nil
		}
	}
	for _, d := range devices {
		if strings.Contains(d.Name, name) && usable(d) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no audio device matches %q", name)
}

func (o *paOpener) OpenCapture(device string) (Capture, error) {
	info, err := findDevice(device, true)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, o.cfg.FrameSize)
	p := portaudio.LowLatencyParameters(info, nil)
	p.Input.Channels = o.cfg.Channels
	p.SampleRate = float64(o.cfg.SampleRate)
	p.FramesPerBuffer = o.cfg.FrameSize

	stream, err := portaudio.OpenStream(p, buf)
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", device, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start capture %q: %w", device, err)
	}

	o.logger.Info("capture stream opened", "device", device, "resolved", info.Name)
	return &paCapture{paStream: paStream{stream: stream, device: device}, buf: buf}, nil
}

func (o *paOpener) OpenPlayback(device string) (Playback, error) {
	info, err := findDevice(device, false)
	if err != nil {
		return nil, err
	}

	buf := make([]int16, o.cfg.FrameSize)
	p := portaudio.LowLatencyParameters(nil, info)
	p.Output.Channels = o.cfg.Channels
	p.SampleRate = float64(o.cfg.SampleRate)
	p.FramesPerBuffer = o.cfg.FrameSize

	stream, err := portaudio.OpenStream(p, buf)
	if err != nil {
		return nil, fmt.Errorf("open playback %q: %w", device, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start playback %q: %w", device, err)
	}

	o.logger.Info("playback stream opened", "device", device, "resolved", info.Name)
	return &paPlayback{paStream: paStream{stream: stream, device: device}, buf: buf}, nil
}

func (o *paOpener) Close() error {
	return portaudio.Terminate()
}

// paStream holds what capture and playback share.
type paStream struct {
	stream *portaudio.Stream
	device string
	closed atomic.Bool

	frames atomic.Int64
	errors atomic.Int64
	primes atomic.Int64
}

// Prepare restarts the stream, discarding whatever the host buffered.
func (s *paStream) Prepare() error {
	s.primes.Add(1)
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("stop %q: %w", s.device, err)
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start %q: %w", s.device, err)
	}
	return nil
}

func (s *paStream) Device() string {
	return s.device
}

func (s *paStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stream.Stop()
	return s.stream.Close()
}

func (s *paStream) Stats() StreamStats {
	return StreamStats{
		Device:  s.device,
		Frames:  s.frames.Load(),
		Errors:  s.errors.Load(),
		Primes:  s.primes.Load(),
		Backend: string(BackendPortAudio),
	}
}

type paCapture struct {
	paStream
	buf []int16
}

func (c *paCapture) ReadFrame(frame []int16) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(frame) != len(c.buf) {
		return fmt.Errorf("%w: frame of %d samples, stream expects %d", ErrShortRead, len(frame), len(c.buf))
	}
	if err := c.stream.Read(); err != nil {
		c.errors.Add(1)
		if errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("%w: input overflowed", ErrShortRead)
		}
		return fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	copy(frame, c.buf)
	c.frames.Add(1)
	return nil
}

type paPlayback struct {
	paStream
	buf []int16
}

func (p *paPlayback) WriteFrame(frame []int16) error {
	if p.closed.Load() {
		return ErrClosed
	}
	n := copy(p.buf, frame)
	clear(p.buf[n:])
	if err := p.stream.Write(); err != nil {
		p.errors.Add(1)
		if errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("%w: output underflowed", ErrUnderrun)
		}
		return fmt.Errorf("%w: %v", ErrUnderrun, err)
	}
	p.frames.Add(1)
	return nil
}

var (
	_ Capture       = (*paCapture)(nil)
	_ Playback      = (*paPlayback)(nil)
	_ StatsProvider = (*paCapture)(nil)
)
