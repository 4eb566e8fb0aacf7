// Package stretch implements an envelope-driven variable-speed resampler.
//
// Loud input speeds playback up, quiet input lets it relax back to unity.
// The effect keeps a short history of captured samples and walks a
// fractional read cursor through it, so speeding up eventually runs out of
// history (the frame tail is left as captured) and slowing down lags behind
// the live input (old history is dropped once the bound is reached).
//
// Every Effect owns its own history and cursor; two pipelines must use two
// Effects.
package stretch

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/interp"

	"github.com/teslashibe/go-taro/pkg/audioio"
)

// Effect is a stateful time-stretch transform over successive frames from
// one capture stream. Process must be called from a single goroutine.
type Effect struct {
	cfg    Config
	interp *interp.LagrangeInterpolator

	history []int16
	readPos float64
	speed   float64
	target  float64
	pair    [2]float64

	speedBits  atomic.Uint64
	targetBits atomic.Uint64
	skipped    atomic.Int64
	truncated  atomic.Int64
}

// New creates an effect at unity speed with empty history.
func New(cfg Config) (*Effect, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e := &Effect{
		cfg:    cfg,
		interp: interp.NewLagrangeInterpolator(1),
	}
	e.Reset()
	return e, nil
}

// Reset drops the history and returns to unity speed.
func (e *Effect) Reset() {
	e.history = e.history[:0]
	e.readPos = 0
	e.setSpeed(1, 1)
}

// Process stretches frame in place.
func (e *Effect) Process(frame []int16) {
	n := len(frame)
	if n == 0 {
		return
	}

	amp := audioio.MeanAbs(frame) / audioio.FullScale
	e.updateSpeed(amp)

	bound := e.cfg.HistoryFrames * n
	e.appendHistory(frame, bound)

	if len(e.history) < n+2 {
		e.skipped.Add(1)
		return
	}

	last := float64(len(e.history) - 1)
	e.readPos = core.Clamp(e.readPos, 0, last)

	rp := e.readPos
	for i := range frame {
		i0 := int(rp)
		i1 := min(i0+1, len(e.history)-1)
		e.pair[0] = float64(e.history[i0])
		e.pair[1] = float64(e.history[i1])

		out := e.interp.Interpolate(e.pair[:], rp-float64(i0))
		frame[i] = int16(core.Clamp(out, math.MinInt16, math.MaxInt16))

		rp += e.speed
		if rp >= last {
			rp = last
			if i < n-1 {
				e.truncated.Add(1)
			}
			break
		}
	}
	e.readPos = rp

	// Drop consumed history, keeping two frames for interpolation headroom.
	if drop := min(int(e.readPos), len(e.history)-2*n); drop > 0 {
		e.dropFront(drop)
	}
}

func (e *Effect) updateSpeed(amp float64) {
	c := e.cfg
	target := 1.0
	if amp >= c.Threshold {
		target = 1 + (amp-c.Threshold)*c.Sensitivity
	}
	target = core.Clamp(target, c.MinSpeed, c.MaxSpeed)

	speed := e.speed + (target-e.speed)*c.SpeedSmoothing
	e.setSpeed(core.Clamp(speed, c.MinSpeed, c.MaxSpeed), target)
}

func (e *Effect) setSpeed(speed, target float64) {
	e.speed = speed
	e.target = target
	e.speedBits.Store(math.Float64bits(speed))
	e.targetBits.Store(math.Float64bits(target))
}

func (e *Effect) appendHistory(frame []int16, bound int) {
	if cap(e.history) < bound+len(frame) {
		grown := make([]int16, len(e.history), bound+len(frame))
		copy(grown, e.history)
		e.history = grown
	}
	e.history = append(e.history, frame...)
	if over := len(e.history) - bound; over > 0 {
		e.dropFront(over)
	}
}

// dropFront discards the oldest n samples and shifts the cursor with them.
func (e *Effect) dropFront(n int) {
	copy(e.history, e.history[n:])
	e.history = e.history[:len(e.history)-n]
	e.readPos = math.Max(0, e.readPos-float64(n))
}

// Speed returns the current playback speed.
func (e *Effect) Speed() float64 {
	return math.Float64frombits(e.speedBits.Load())
}

// TargetSpeed returns the speed the effect is converging toward.
func (e *Effect) TargetSpeed() float64 {
	return math.Float64frombits(e.targetBits.Load())
}

// HistoryLen returns the number of buffered samples.
// Only valid on the processing goroutine.
func (e *Effect) HistoryLen() int {
	return len(e.history)
}

// Cursor returns the fractional read position into the history.
// Only valid on the processing goroutine.
func (e *Effect) Cursor() float64 {
	return e.readPos
}

// Config returns the effect configuration.
func (e *Effect) Config() Config {
	return e.cfg
}

// Stats contains effect counters.
type Stats struct {
	Speed       float64 `json:"speed"`
	TargetSpeed float64 `json:"target_speed"`
	Skipped     int64   `json:"skipped"`
	Truncated   int64   `json:"truncated"`
}

// Stats returns effect counters. Safe to call from any goroutine.
func (e *Effect) Stats() Stats {
	return Stats{
		Speed:       e.Speed(),
		TargetSpeed: e.TargetSpeed(),
		Skipped:     e.skipped.Load(),
		Truncated:   e.truncated.Load(),
	}
}
