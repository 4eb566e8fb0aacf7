package creature

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Glancer is the part of the neck the idle scheduler uses.
type Glancer interface {
	SetTarget(pulse float64)
}

// Flapper is the part of the wings the idle scheduler uses.
type Flapper interface {
	Flap(ctx context.Context) (bool, error)
}

// Idle performs random glances and flaps while active. Higher activity
// levels act more often and flap more.
type Idle struct {
	cfg    IdleConfig
	neck   Glancer
	wings  Flapper
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	rng    *rand.Rand
	active bool
	level  int
	next   time.Time

	flaps sync.WaitGroup
}

// IdleOption configures Idle.
type IdleOption func(*Idle)

// WithIdleClock overrides the time source.
func WithIdleClock(now func() time.Time) IdleOption {
	return func(i *Idle) {
		i.now = now
	}
}

// WithIdleRand sets the random source.
func WithIdleRand(rng *rand.Rand) IdleOption {
	return func(i *Idle) {
		i.rng = rng
	}
}

// WithIdleLogger sets the logger.
func WithIdleLogger(logger *slog.Logger) IdleOption {
	return func(i *Idle) {
		i.logger = logger
	}
}

// NewIdle creates an inactive scheduler.
func NewIdle(cfg IdleConfig, neck Glancer, wings Flapper, opts ...IdleOption) (*Idle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid idle config: %w", err)
	}
	if neck == nil || wings == nil {
		return nil, fmt.Errorf("idle: neck and wings are required")
	}

	i := &Idle{
		cfg:    cfg,
		neck:   neck,
		wings:  wings,
		logger: slog.Default(),
		now:    time.Now,
		level:  cfg.Level,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.rng == nil {
		i.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	i.logger = i.logger.With("component", "idle")
	return i, nil
}

// SetActive turns the scheduler on or off. Turning it on acts on the
// next Update.
func (i *Idle) SetActive(active bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = active
	i.next = i.now()
}

// Active reports whether the scheduler is on.
func (i *Idle) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Level returns the activity level.
func (i *Idle) Level() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.level
}

// IncreaseActivity raises the level by one, up to MaxLevel.
func (i *Idle) IncreaseActivity() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.level = min(i.level+1, MaxLevel)
}

// DecreaseActivity lowers the level by one, down to MinLevel.
func (i *Idle) DecreaseActivity() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.level = max(i.level-1, MinLevel)
}

// Interval returns the delay before the next action for a level and a
// random draw. Level 1 waits 4 to 5 s, level 10 about 0.4 s.
func Interval(level int, rng *rand.Rand) time.Duration {
	minMS := 4000 - (level-1)*400
	randMS := max(1000-(level-1)*80, 100)
	return time.Duration(minMS+rng.IntN(randMS)) * time.Millisecond
}

// Update performs an action if one is due. A flap runs in its own
// goroutine so the caller's tick is not held for the wings' hold time;
// its errors are logged. Call Wait before releasing the wings.
func (i *Idle) Update(ctx context.Context) error {
	i.mu.Lock()
	if !i.active || i.now().Before(i.next) {
		i.mu.Unlock()
		return nil
	}

	flap := i.rng.IntN(10) < i.level/3
	pos := i.cfg.Positions[i.rng.IntN(len(i.cfg.Positions))]
	i.next = i.now().Add(Interval(i.level, i.rng))
	i.mu.Unlock()

	if flap {
		i.logger.Debug("idle flap")
		i.flaps.Add(1)
		go func() {
			defer i.flaps.Done()
			if _, err := i.wings.Flap(ctx); err != nil {
				i.logger.Warn("idle flap failed", "error", err)
			}
		}()
		return nil
	}
	i.logger.Debug("idle glance", "pulse", pos)
	i.neck.SetTarget(pos)
	return nil
}

// Wait blocks until every flap started by Update has finished.
func (i *Idle) Wait() {
	i.flaps.Wait()
}

// IdleStats is a snapshot of the scheduler.
type IdleStats struct {
	Active bool `json:"active"`
	Level  int  `json:"level"`
}

// Stats returns a snapshot.
func (i *Idle) Stats() IdleStats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return IdleStats{Active: i.active, Level: i.level}
}
