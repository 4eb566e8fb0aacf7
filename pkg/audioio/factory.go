package audioio

import (
	"fmt"
	"io"
	"log/slog"
)

// Opener opens capture and playback streams by device name.
type Opener interface {
	OpenCapture(device string) (Capture, error)
	OpenPlayback(device string) (Playback, error)

	// Close releases backend-wide resources once all streams are closed.
	io.Closer
}

// NewOpener creates an opener for the configured backend.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewOpener(cfg Config, logger *slog.Logger) (Opener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		var err error
		if backend, err = detectBestBackend(); err != nil {
			return nil, err
		}
	}

	logger.Info("creating audio opener",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"frame_size", cfg.FrameSize,
		"frame_ms", cfg.FrameDuration().Milliseconds(),
	)

	switch backend {
	case BackendMock:
		o := NewMockOpener(cfg)
		o.SetInterval(cfg.FrameDuration())
		return o, nil
	case BackendWAV:
		return newWAVOpener(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioOpener(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the device backend compiled into this build.
// The mock and WAV backends are never picked automatically.
func detectBestBackend() (Backend, error) {
	if portAudioAvailable {
		return BackendPortAudio, nil
	}
	return "", ErrNoDeviceBackend
}

// AvailableBackends returns the list of backends available in this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendWAV}
	if portAudioAvailable {
		backends = append(backends, BackendPortAudio)
	}
	return backends
}
