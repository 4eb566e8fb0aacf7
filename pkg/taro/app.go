// Package taro wires the jaw, neck, wings and status server of the
// creature into one application.
package taro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-taro/internal/config"
	"github.com/teslashibe/go-taro/internal/metrics"
	"github.com/teslashibe/go-taro/pkg/audioio"
	"github.com/teslashibe/go-taro/pkg/creature"
	"github.com/teslashibe/go-taro/pkg/mouth"
	"github.com/teslashibe/go-taro/pkg/pca9685"
	"github.com/teslashibe/go-taro/pkg/web"
)

// Option configures an App.
type Option func(*App)

// WithBus drives the servos over bus instead of opening the configured
// I2C device.
func WithBus(bus pca9685.Bus) Option {
	return func(a *App) {
		a.bus = bus
	}
}

// WithOpener uses opener instead of creating one for the configured
// backend. The App does not close it.
func WithOpener(opener audioio.Opener) Option {
	return func(a *App) {
		a.opener = opener
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// App is the creature. It owns the servo driver, the audio opener and
// every part built on them.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	bus       pca9685.Bus
	driver    *pca9685.Driver
	opener    audioio.Opener
	ownOpener bool

	mouth   *mouth.Mouth
	neck    *creature.Neck
	wings   *creature.Wings
	idle    *creature.Idle
	ctrl    *creature.Controller
	metrics *metrics.Metrics
	server  *web.Server
}

// New validates cfg. Hardware is not touched until Init.
func New(cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init brings up the servo controller, the audio backend and every part.
// A servo controller failure is returned so the caller can treat it as
// fatal. On error everything already opened is released.
func (a *App) Init() (err error) {
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	if a.bus != nil {
		a.driver, err = pca9685.New(a.bus, a.cfg.Bus, a.logger)
	} else {
		a.driver, err = pca9685.Open(a.cfg.Bus, a.logger)
	}
	if err != nil {
		return fmt.Errorf("servo controller: %w", err)
	}

	if a.opener == nil {
		a.opener, err = audioio.NewOpener(a.cfg.Audio, a.logger)
		if err != nil {
			return fmt.Errorf("audio: %w", err)
		}
		a.ownOpener = true
	}

	a.mouth, err = mouth.New(a.cfg.Mouth, a.driver.Servo(a.cfg.Mouth.Channel), a.cfg.Audio, a.opener,
		mouth.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("mouth: %w", err)
	}

	a.neck, err = creature.NewNeck(a.cfg.Neck, a.driver.Servo(a.cfg.Neck.Channel), a.logger)
	if err != nil {
		return fmt.Errorf("neck: %w", err)
	}

	a.wings, err = creature.NewWings(a.cfg.Wings,
		a.driver.Servo(a.cfg.Wings.Left.Channel),
		a.driver.Servo(a.cfg.Wings.Right.Channel),
		creature.WithWingsLogger(a.logger))
	if err != nil {
		return fmt.Errorf("wings: %w", err)
	}

	a.idle, err = creature.NewIdle(a.cfg.Idle, a.neck, a.wings, creature.WithIdleLogger(a.logger))
	if err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	a.idle.SetActive(a.cfg.Idle.Enabled)

	a.ctrl = &creature.Controller{
		Neck:   a.neck,
		Wings:  a.wings,
		Idle:   a.idle,
		Logger: a.logger,
	}

	a.metrics = metrics.New(a.Snapshot)
	a.server = web.NewServer(a.cfg.Web, a.Snapshot, a.metrics, a.logger)

	a.logger.Info("creature initialized",
		"mouth_channel", a.cfg.Mouth.Channel,
		"neck_channel", a.cfg.Neck.Channel,
		"stretch", a.cfg.Mouth.StretchEnabled,
		"idle", a.cfg.Idle.Enabled,
	)
	return nil
}

// Run starts the mouth and runs the creature and the status server until
// ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a.mouth == nil {
		return errors.New("taro: Init has not been called")
	}
	if err := a.mouth.Start(); err != nil {
		return fmt.Errorf("start mouth: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.ctrl.Run(ctx)
	})
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	return g.Wait()
}

// Shutdown stops the mouth, closes the jaw, recenters the neck and
// releases the hardware.
func (a *App) Shutdown() {
	if a.mouth != nil {
		if err := a.mouth.Stop(); err != nil {
			a.logger.Warn("stop mouth", "error", err)
		}
	}
	if a.neck != nil {
		if err := a.neck.Center(); err != nil {
			a.logger.Warn("center neck", "error", err)
		}
	}
	a.release()
	a.logger.Info("creature shut down")
}

func (a *App) release() {
	if a.ownOpener && a.opener != nil {
		if err := a.opener.Close(); err != nil {
			a.logger.Warn("close audio", "error", err)
		}
		a.opener = nil
	}
	if a.driver != nil {
		if err := a.driver.Close(); err != nil {
			a.logger.Warn("close servo controller", "error", err)
		}
		a.driver = nil
	}
}

// Snapshot gathers the current state of every part.
func (a *App) Snapshot() metrics.Snapshot {
	var s metrics.Snapshot
	if a.mouth != nil {
		s.Mouth = a.mouth.Stats()
	}
	if a.ctrl != nil {
		s.Creature = a.ctrl.Stats()
	}
	return s
}

// Mouth returns the jaw, or nil before Init.
func (a *App) Mouth() *mouth.Mouth { return a.mouth }

// Idle returns the idle scheduler, or nil before Init.
func (a *App) Idle() *creature.Idle { return a.idle }

// Server returns the status server, or nil before Init.
func (a *App) Server() *web.Server { return a.server }
