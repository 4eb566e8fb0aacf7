// Taro - audio-reactive animatronic
// Moves the jaw with the microphone level, plays the voice back time-stretched
// and serves live status on /api/status, /ws/status and /metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-taro/internal/config"
	"github.com/teslashibe/go-taro/internal/log"
	"github.com/teslashibe/go-taro/pkg/audioio"
	"github.com/teslashibe/go-taro/pkg/pca9685"
	"github.com/teslashibe/go-taro/pkg/taro"
)

type flags struct {
	configPath string
	debug      bool
	dryRun     bool
	backend    string
	noStretch  bool
	idle       bool
	idleLevel  int
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, f)

	log.Init(cfg.LogLevel)
	logger := log.L()

	var opts []taro.Option
	opts = append(opts, taro.WithLogger(logger))
	if f.dryRun {
		logger.Warn("dry run: servo writes go to an in-memory register file")
		opts = append(opts, taro.WithBus(pca9685.NewMemoryBus()))
	}

	app, err := taro.New(cfg, opts...)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("taro running", "port", cfg.Web.Port)
	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", config.Env("TARO_CONFIG", "taro.yaml"), "Path to YAML config (missing file uses defaults)")
	flag.BoolVar(&f.debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&f.dryRun, "dry-run", false, "Run without hardware: in-memory servo registers, mock audio unless -backend is set")
	flag.StringVar(&f.backend, "backend", "", "Audio backend: auto, portaudio, wav, mock")
	flag.BoolVar(&f.noStretch, "no-stretch", false, "Play the voice back unmodified")
	flag.BoolVar(&f.idle, "idle", false, "Start the idle scheduler")
	flag.IntVar(&f.idleLevel, "idle-level", 0, "Idle activity level 1-10 (0 keeps the configured level)")
	flag.Parse()
	return f
}

// applyFlags layers command line flags over the loaded configuration.
func applyFlags(cfg *config.Config, f flags) {
	if f.debug {
		cfg.LogLevel = "debug"
	}
	if f.backend != "" {
		cfg.Audio.Backend = audioio.Backend(f.backend)
	}
	if f.dryRun && cfg.Audio.Backend == audioio.BackendAuto {
		cfg.Audio.Backend = audioio.BackendMock
	}
	if f.noStretch {
		cfg.Mouth.StretchEnabled = false
	}
	if f.idle {
		cfg.Idle.Enabled = true
	}
	if f.idleLevel != 0 {
		cfg.Idle.Level = f.idleLevel
	}
}
