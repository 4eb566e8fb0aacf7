package audioio

import (
	"path/filepath"
	"testing"
)

func TestWAV_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendWAV
	cfg.FrameSize = 256

	o, err := NewOpener(cfg, nil)
	if err != nil {
		t.Fatalf("NewOpener failed: %v", err)
	}
	defer o.Close()

	path := filepath.Join(t.TempDir(), "out.wav")
	p, err := o.OpenPlayback(path)
	if err != nil {
		t.Fatalf("OpenPlayback failed: %v", err)
	}

	gen := Sine(440, 0.5, cfg.SampleRate)
	var want []int16
	frame := make([]int16, cfg.FrameSize)
	for i := 0; i < 4; i++ {
		gen(frame, int64(i))
		want = append(want, frame...)
		if err := p.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := LoadWAV(path, cfg.SampleRate)
	if err != nil {
		t.Fatalf("LoadWAV failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	c, err := o.OpenCapture(path)
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer c.Close()

	// Five frames from a four-frame file wraps to the start.
	for i := 0; i < 5; i++ {
		if err := c.ReadFrame(frame); err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
	}
	if frame[0] != want[0] {
		t.Errorf("Expected capture to loop, got %d want %d", frame[0], want[0])
	}
}

func TestWAV_MissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "nope.wav"), 48000); err == nil {
		t.Error("Expected error for missing file")
	}
}
