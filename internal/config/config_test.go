package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.Mouth.Channel != 3 || cfg.Neck.Channel != 2 {
		t.Errorf("Unexpected default channels: mouth=%d neck=%d", cfg.Mouth.Channel, cfg.Neck.Channel)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bus.Bus != Default().Bus.Bus {
		t.Errorf("Expected default bus, got %q", cfg.Bus.Bus)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taro.yaml")
	data := `
log_level: debug
bus:
  bus: /dev/i2c-3
audio:
  backend: wav
  frame_size: 512
mouth:
  pipeline:
    capture_device: mic.wav
    playback_devices: [left.wav, right.wav]
  mapper:
    dead_zone: 120
    settle_delay: 30ms
  stretch_enabled: false
wings:
  hold: 400ms
web:
  port: "9090"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Bus.Bus != "/dev/i2c-3" || cfg.Bus.Address != 0x40 {
		t.Errorf("Expected bus override with default address, got %+v", cfg.Bus)
	}
	if cfg.Audio.FrameSize != 512 || cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected frame size 512 at 48000 Hz, got %+v", cfg.Audio)
	}
	if len(cfg.Mouth.Pipeline.PlaybackDevices) != 2 {
		t.Errorf("Expected 2 playback devices, got %v", cfg.Mouth.Pipeline.PlaybackDevices)
	}
	if cfg.Mouth.Mapper.DeadZone != 120 || cfg.Mouth.Mapper.MaxPulse != 1300 {
		t.Errorf("Expected dead zone override with default range, got %+v", cfg.Mouth.Mapper)
	}
	if cfg.Mouth.Mapper.SettleDelay != 30*time.Millisecond {
		t.Errorf("Expected settle delay 30ms, got %v", cfg.Mouth.Mapper.SettleDelay)
	}
	if cfg.Mouth.StretchEnabled {
		t.Error("Expected stretch disabled")
	}
	if cfg.Wings.Hold != 400*time.Millisecond || cfg.Wings.Cooldown != 2*time.Second {
		t.Errorf("Expected hold 400ms and default cooldown, got %v/%v", cfg.Wings.Hold, cfg.Wings.Cooldown)
	}
	if cfg.Web.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Web.Port)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvI2CBus, "/dev/i2c-7")
	t.Setenv(EnvPlaybackDevices, "hw:1, hw:2")
	t.Setenv(EnvWebPort, "8181")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bus.Bus != "/dev/i2c-7" {
		t.Errorf("Expected bus from env, got %s", cfg.Bus.Bus)
	}
	devs := cfg.Mouth.Pipeline.PlaybackDevices
	if len(devs) != 2 || devs[0] != "hw:1" || devs[1] != "hw:2" {
		t.Errorf("Expected [hw:1 hw:2], got %v", devs)
	}
	if cfg.Web.Port != "8181" || cfg.LogLevel != "warn" {
		t.Errorf("Expected port 8181 and level warn, got %s/%s", cfg.Web.Port, cfg.LogLevel)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("bus: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestValidate_ChannelConflicts(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"mouth on neck channel", func(c *Config) { c.Mouth.Channel = c.Neck.Channel }},
		{"neck on wing channel", func(c *Config) { c.Neck.Channel = c.Wings.Left.Channel }},
		{"channel out of range", func(c *Config) { c.Mouth.Channel = 16 }},
		{"three playbacks", func(c *Config) { c.Mouth.Pipeline.PlaybackDevices = []string{"a", "b", "c"} }},
		{"bad bus address", func(c *Config) { c.Bus.Address = 0x80 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestEnv(t *testing.T) {
	t.Setenv("TARO_TEST_KEY", "")
	if got := Env("TARO_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %s", got)
	}
	t.Setenv("TARO_TEST_KEY", "set")
	if got := Env("TARO_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("Expected set, got %s", got)
	}
}
