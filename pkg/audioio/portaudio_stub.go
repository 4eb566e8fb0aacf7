//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioAvailable = false

// newPortAudioOpener returns an error when built without the portaudio tag.
func newPortAudioOpener(cfg Config, logger *slog.Logger) (Opener, error) {
	return nil, fmt.Errorf("PortAudio support not compiled in (build with -tags portaudio)")
}
