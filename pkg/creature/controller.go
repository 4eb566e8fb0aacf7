package creature

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTick is the control loop period.
const DefaultTick = 20 * time.Millisecond

// Controller ticks the neck and the idle scheduler.
type Controller struct {
	Neck   *Neck
	Wings  *Wings
	Idle   *Idle
	Tick   time.Duration
	Logger *slog.Logger
}

// Run ticks until ctx is done, then waits for any idle flap to lower the
// wings. Servo write failures are logged and the loop carries on; the next
// tick re-asserts the position.
func (c *Controller) Run(ctx context.Context) error {
	tick := c.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "creature")

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if c.Idle != nil {
				c.Idle.Wait()
			}
			return nil
		case <-ticker.C:
		}

		if c.Idle != nil {
			if err := c.Idle.Update(ctx); err != nil {
				logger.Warn("idle action failed", "error", err)
			}
		}
		if c.Neck != nil {
			if err := c.Neck.Update(); err != nil {
				logger.Debug("neck update failed", "error", err)
			}
		}
	}
}

// Stats is a snapshot of the creature's servos.
type Stats struct {
	Neck  *NeckStats  `json:"neck,omitempty"`
	Wings *WingsStats `json:"wings,omitempty"`
	Idle  *IdleStats  `json:"idle,omitempty"`
}

// Stats returns a snapshot of whichever parts are present.
func (c *Controller) Stats() Stats {
	var st Stats
	if c.Neck != nil {
		s := c.Neck.Stats()
		st.Neck = &s
	}
	if c.Wings != nil {
		s := c.Wings.Stats()
		st.Wings = &s
	}
	if c.Idle != nil {
		s := c.Idle.Stats()
		st.Idle = &s
	}
	return st
}
