package actuation

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

const floatTolerance = 1e-9

// mockServo records every pulse written.
type mockServo struct {
	mu     sync.Mutex
	pulses []float64
	err    error
}

func (m *mockServo) SetPulse(micros float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulses = append(m.pulses, micros)
	return m.err
}

func (m *mockServo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pulses)
}

// fakeClock advances by a fixed step every time it is read.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func constantFrame(amp int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = amp
		} else {
			f[i] = -amp
		}
	}
	return f
}

func newTestMapper(t *testing.T, servo PulseWriter) *Mapper {
	t.Helper()
	clk := &fakeClock{t: time.Unix(0, 0), step: 25 * time.Millisecond}
	m, err := New(DefaultConfig(), servo, WithClock(clk.now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func TestHandleFrame_DeadZoneHoldsState(t *testing.T) {
	servo := &mockServo{}
	m := newTestMapper(t, servo)

	// Drive the mouth open a bit first.
	m.HandleFrame(constantFrame(20000, 1024))
	before := m.Pulse()
	writes := servo.count()

	for _, amp := range []int16{0, 1, 20, 49} {
		m.HandleFrame(constantFrame(amp, 1024))
		if got := m.Pulse(); got != before {
			t.Errorf("amp %d: pulse changed from %v to %v", amp, before, got)
		}
		if m.State() != StateIdle {
			t.Errorf("amp %d: expected idle state, got %v", amp, m.State())
		}
	}
	if servo.count() != writes {
		t.Errorf("Expected no writes in dead zone, got %d new", servo.count()-writes)
	}
}

func TestHandleFrame_SlewBoundAndRange(t *testing.T) {
	servo := &mockServo{}
	m := newTestMapper(t, servo)
	cfg := m.Config()
	maxStep := cfg.MaxSpeed * cfg.SmoothingFactor

	rng := rand.New(rand.NewPCG(1, 2))
	prev := m.Pulse()
	for i := 0; i < 2000; i++ {
		amp := int16(rng.IntN(32767))
		m.HandleFrame(constantFrame(amp, 256))

		p := m.Pulse()
		if math.Abs(p-prev) > maxStep+floatTolerance {
			t.Fatalf("cycle %d: delta %v exceeds %v", i, p-prev, maxStep)
		}
		if p < cfg.MinPulse || p > cfg.MaxPulse {
			t.Fatalf("cycle %d: pulse %v outside [%v, %v]", i, p, cfg.MinPulse, cfg.MaxPulse)
		}
		prev = p
	}

	for _, p := range servo.pulses {
		if p < cfg.MinPulse || p > cfg.MaxPulse {
			t.Errorf("servo written with out-of-range pulse %v", p)
		}
	}
}

func TestHandleFrame_ConstantLoudConverges(t *testing.T) {
	servo := &mockServo{}
	m := newTestMapper(t, servo)
	cfg := m.Config()

	prev := m.Pulse()
	for i := 0; i < 100; i++ {
		m.HandleFrame(constantFrame(20000, 1024))
		p := m.Pulse()
		if p < prev {
			t.Fatalf("cycle %d: pulse decreased from %v to %v", i, prev, p)
		}
		prev = p
	}

	if prev < cfg.MaxPulse-cfg.MovementThreshold/cfg.SmoothingFactor {
		t.Errorf("Expected pulse near %v, got %v", cfg.MaxPulse, prev)
	}

	writes := servo.count()
	for i := 0; i < 50; i++ {
		m.HandleFrame(constantFrame(20000, 1024))
	}
	if servo.count() != writes {
		t.Errorf("Expected stable hold, got %d extra writes", servo.count()-writes)
	}
	if m.Pulse() != prev {
		t.Errorf("Expected pulse to hold at %v, got %v", prev, m.Pulse())
	}
}

func TestHandleFrame_SettleDelay(t *testing.T) {
	servo := &mockServo{}
	clk := &fakeClock{t: time.Unix(0, 0), step: time.Millisecond}
	m, err := New(DefaultConfig(), servo, WithClock(clk.now))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.HandleFrame(constantFrame(20000, 1024))
	if servo.count() != 1 {
		t.Fatalf("Expected 1 write, got %d", servo.count())
	}

	// 1ms later: still inside the 20ms settle window.
	m.HandleFrame(constantFrame(20000, 1024))
	if servo.count() != 1 {
		t.Errorf("Expected write suppressed while settling, got %d writes", servo.count())
	}
	if m.State() != StateSettling {
		t.Errorf("Expected settling state, got %v", m.State())
	}

	clk.t = clk.t.Add(30 * time.Millisecond)
	m.HandleFrame(constantFrame(20000, 1024))
	if servo.count() != 2 {
		t.Errorf("Expected second write after settle delay, got %d writes", servo.count())
	}
}

func TestHandleFrame_WriteErrorIsNotFatal(t *testing.T) {
	servo := &mockServo{err: errors.New("bus nack")}
	m := newTestMapper(t, servo)

	m.HandleFrame(constantFrame(20000, 1024))
	m.HandleFrame(constantFrame(20000, 1024))

	st := m.Stats()
	if st.WriteErrors != 2 {
		t.Errorf("Expected 2 write errors, got %d", st.WriteErrors)
	}
	if st.Writes != 2 {
		t.Errorf("Expected 2 writes, got %d", st.Writes)
	}
	if m.Pulse() <= m.Config().MinPulse {
		t.Errorf("Expected pulse to advance despite write errors, got %v", m.Pulse())
	}
}

func TestStep_Hysteresis(t *testing.T) {
	m := newTestMapper(t, &mockServo{})
	cfg := m.Config()

	// Amplitude that maps just above MinPulse: change too small to commit.
	amp := (cfg.MovementThreshold / 2) / (cfg.MaxPulse - cfg.MinPulse) * 32768 / cfg.Gain / cfg.SmoothingFactor
	if _, ok := m.Step(amp); ok {
		t.Error("Expected small change to be suppressed")
	}
	if _, ok := m.Step(20000); !ok {
		t.Error("Expected large change to commit")
	}
}

func TestReset(t *testing.T) {
	m := newTestMapper(t, &mockServo{})
	m.HandleFrame(constantFrame(20000, 1024))
	m.Reset()

	if m.Pulse() != m.Config().MinPulse {
		t.Errorf("Expected pulse reset to %v, got %v", m.Config().MinPulse, m.Pulse())
	}
	if m.State() != StateIdle {
		t.Errorf("Expected idle after reset, got %v", m.State())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"inverted range", func(c *Config) { c.MinPulse, c.MaxPulse = 1300, 850 }},
		{"negative dead zone", func(c *Config) { c.DeadZone = -1 }},
		{"zero gain", func(c *Config) { c.Gain = 0 }},
		{"zero speed", func(c *Config) { c.MaxSpeed = 0 }},
		{"smoothing above one", func(c *Config) { c.SmoothingFactor = 1.5 }},
		{"negative threshold", func(c *Config) { c.MovementThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
}

func TestNew_RequiresServo(t *testing.T) {
	if _, err := New(DefaultConfig(), nil); err == nil {
		t.Error("Expected error without servo")
	}
}
