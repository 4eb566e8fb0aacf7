package creature

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Wings flap both wing servos together, at most once per cooldown.
type Wings struct {
	cfg    WingsConfig
	left   AngleWriter
	right  AngleWriter
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastFlap time.Time
	flapping bool

	flaps atomic.Int64
}

// WingsOption configures Wings.
type WingsOption func(*Wings)

// WithWingsClock overrides the time source.
func WithWingsClock(now func() time.Time) WingsOption {
	return func(w *Wings) {
		w.now = now
	}
}

// WithWingsLogger sets the logger.
func WithWingsLogger(logger *slog.Logger) WingsOption {
	return func(w *Wings) {
		w.logger = logger
	}
}

// NewWings lowers both wings. The first flap is allowed immediately.
func NewWings(cfg WingsConfig, left, right AngleWriter, opts ...WingsOption) (*Wings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wings config: %w", err)
	}
	if left == nil || right == nil {
		return nil, errors.New("wings: both servos are required")
	}

	w := &Wings{
		cfg:    cfg,
		left:   left,
		right:  right,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "wings")
	w.lastFlap = w.now().Add(-cfg.Cooldown)

	if err := w.lower(); err != nil {
		w.logger.Warn("failed to lower wings", "error", err)
	}
	return w, nil
}

// Flap raises both wings, holds them up and lowers them again. It returns
// false without moving if the cooldown has not elapsed or a flap is already
// in progress. If ctx is cancelled during the hold the wings are lowered
// early.
func (w *Wings) Flap(ctx context.Context) (bool, error) {
	w.mu.Lock()
	now := w.now()
	if w.flapping || now.Sub(w.lastFlap) < w.cfg.Cooldown {
		w.mu.Unlock()
		return false, nil
	}
	w.flapping = true
	w.lastFlap = now
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.flapping = false
		w.mu.Unlock()
	}()

	w.flaps.Add(1)
	upErr := errors.Join(
		w.left.SetAngle(w.cfg.Left.Up),
		w.right.SetAngle(w.cfg.Right.Up),
	)

	timer := time.NewTimer(w.cfg.Hold)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	if err := errors.Join(upErr, w.lower()); err != nil {
		return true, fmt.Errorf("flap: %w", err)
	}
	return true, nil
}

func (w *Wings) lower() error {
	return errors.Join(
		w.left.SetAngle(w.cfg.Left.Down),
		w.right.SetAngle(w.cfg.Right.Down),
	)
}

// Ready reports whether a flap would be performed now.
func (w *Wings) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.flapping && w.now().Sub(w.lastFlap) >= w.cfg.Cooldown
}

// SinceLastFlap returns the time since the last flap started.
func (w *Wings) SinceLastFlap() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now().Sub(w.lastFlap)
}

// WingsStats is a snapshot of the wings.
type WingsStats struct {
	Ready           bool  `json:"ready"`
	SinceLastFlapMS int64 `json:"since_last_flap_ms"`
	Flaps           int64 `json:"flaps"`
}

// Stats returns a snapshot.
func (w *Wings) Stats() WingsStats {
	return WingsStats{
		Ready:           w.Ready(),
		SinceLastFlapMS: w.SinceLastFlap().Milliseconds(),
		Flaps:           w.flaps.Load(),
	}
}
