package creature

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// recenterTolerance is how close to center the neck must get before a
// recenter completes.
const recenterTolerance = 1.0

// Neck is a smoothed head-turn servo. Targets move in steps; Update moves
// the current pulse a fraction of the way to the target and writes it.
type Neck struct {
	cfg    NeckConfig
	servo  PulseWriter
	logger *slog.Logger

	mu          sync.Mutex
	current     float64
	target      float64
	recentering bool
}

// NewNeck centers the neck.
func NewNeck(cfg NeckConfig, servo PulseWriter, logger *slog.Logger) (*Neck, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid neck config: %w", err)
	}
	if servo == nil {
		return nil, fmt.Errorf("neck: servo is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Neck{
		cfg:     cfg,
		servo:   servo,
		logger:  logger.With("component", "neck", "channel", cfg.Channel),
		current: cfg.Center,
		target:  cfg.Center,
	}
	if err := servo.SetPulse(cfg.Center); err != nil {
		n.logger.Warn("failed to center neck", "error", err)
	}
	return n, nil
}

// SetTarget sets the target pulse, clamped to the configured range.
func (n *Neck) SetTarget(pulse float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = math.Max(n.cfg.Min, math.Min(pulse, n.cfg.Max))
}

// TurnLeft moves the target one step down. Ignored while recentering.
func (n *Neck) TurnLeft() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.recentering {
		return
	}
	n.target = math.Max(n.target-n.cfg.Step, n.cfg.Min)
}

// TurnRight moves the target one step up. Ignored while recentering.
func (n *Neck) TurnRight() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.recentering {
		return
	}
	n.target = math.Min(n.target+n.cfg.Step, n.cfg.Max)
}

// Recenter heads back to center; turns are ignored until it gets there.
func (n *Neck) Recenter() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recentering = true
	n.target = n.cfg.Center
}

// Center jumps straight to center and writes it.
func (n *Neck) Center() error {
	n.mu.Lock()
	n.current = n.cfg.Center
	n.target = n.cfg.Center
	n.recentering = false
	n.mu.Unlock()

	if err := n.servo.SetPulse(n.cfg.Center); err != nil {
		return fmt.Errorf("neck write: %w", err)
	}
	return nil
}

// Update advances the current pulse toward the target and writes it.
// Call it once per control tick.
func (n *Neck) Update() error {
	n.mu.Lock()
	n.current += (n.target - n.current) * n.cfg.Smoothing
	pulse := n.current
	if n.recentering && math.Abs(n.current-n.cfg.Center) < recenterTolerance {
		n.current = n.cfg.Center
		n.recentering = false
	}
	n.mu.Unlock()

	if err := n.servo.SetPulse(pulse); err != nil {
		return fmt.Errorf("neck write: %w", err)
	}
	return nil
}

// Pulse returns the current pulse.
func (n *Neck) Pulse() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Target returns the target pulse.
func (n *Neck) Target() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

// Recentering reports whether a recenter is in progress.
func (n *Neck) Recentering() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.recentering
}

// NeckStats is a snapshot of the neck.
type NeckStats struct {
	Pulse       float64 `json:"pulse"`
	Target      float64 `json:"target"`
	Recentering bool    `json:"recentering"`
}

// Stats returns a snapshot.
func (n *Neck) Stats() NeckStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NeckStats{Pulse: n.current, Target: n.target, Recentering: n.recentering}
}
