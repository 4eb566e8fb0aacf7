// Package config loads the go-taro configuration file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-taro/pkg/audioio"
	"github.com/teslashibe/go-taro/pkg/creature"
	"github.com/teslashibe/go-taro/pkg/mouth"
	"github.com/teslashibe/go-taro/pkg/pca9685"
	"github.com/teslashibe/go-taro/pkg/web"
)

// Environment variables that override file settings.
const (
	EnvI2CBus          = "TARO_I2C_BUS"
	EnvAudioBackend    = "TARO_AUDIO_BACKEND"
	EnvCaptureDevice   = "TARO_CAPTURE_DEVICE"
	EnvPlaybackDevices = "TARO_PLAYBACK_DEVICES" // comma separated
	EnvWebPort         = "TARO_WEB_PORT"
	EnvLogLevel        = "TARO_LOG_LEVEL"
)

// Config is the full creature configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level"`

	Bus   pca9685.Config       `yaml:"bus" json:"bus"`
	Audio audioio.Config       `yaml:"audio" json:"audio"`
	Mouth mouth.Config         `yaml:"mouth" json:"mouth"`
	Neck  creature.NeckConfig  `yaml:"neck" json:"neck"`
	Wings creature.WingsConfig `yaml:"wings" json:"wings"`
	Idle  creature.IdleConfig  `yaml:"idle" json:"idle"`
	Web   web.Config           `yaml:"web" json:"web"`
}

// Default returns the stock creature configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Bus:      pca9685.DefaultConfig(),
		Audio:    audioio.DefaultConfig(),
		Mouth:    mouth.DefaultConfig(),
		Neck:     creature.DefaultNeckConfig(),
		Wings:    creature.DefaultWingsConfig(),
		Idle:     creature.DefaultIdleConfig(),
		Web:      web.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path or a missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from TARO_* environment variables.
func (c *Config) ApplyEnv() {
	c.Bus.Bus = Env(EnvI2CBus, c.Bus.Bus)
	c.Audio.Backend = audioio.Backend(Env(EnvAudioBackend, string(c.Audio.Backend)))
	c.Mouth.Pipeline.CaptureDevice = Env(EnvCaptureDevice, c.Mouth.Pipeline.CaptureDevice)
	if v := os.Getenv(EnvPlaybackDevices); v != "" {
		var devices []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				devices = append(devices, d)
			}
		}
		c.Mouth.Pipeline.PlaybackDevices = devices
	}
	c.Web.Port = Env(EnvWebPort, c.Web.Port)
	c.LogLevel = Env(EnvLogLevel, c.LogLevel)
}

// Validate checks every section and that no two servos share a channel.
func (c *Config) Validate() error {
	if err := c.Bus.Validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Mouth.Validate(); err != nil {
		return fmt.Errorf("mouth: %w", err)
	}
	if err := c.Neck.Validate(); err != nil {
		return fmt.Errorf("neck: %w", err)
	}
	if err := c.Wings.Validate(); err != nil {
		return fmt.Errorf("wings: %w", err)
	}
	if err := c.Idle.Validate(); err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	if err := c.Web.Validate(); err != nil {
		return fmt.Errorf("web: %w", err)
	}

	channels := map[uint8]string{}
	for name, ch := range map[string]uint8{
		"mouth":      c.Mouth.Channel,
		"neck":       c.Neck.Channel,
		"left wing":  c.Wings.Left.Channel,
		"right wing": c.Wings.Right.Channel,
	} {
		if ch >= pca9685.NumChannels {
			return fmt.Errorf("%s: channel %d out of range", name, ch)
		}
		if other, ok := channels[ch]; ok {
			return fmt.Errorf("%s and %s both use channel %d", other, name, ch)
		}
		channels[ch] = name
	}
	return nil
}

// Env returns the value of key, or def if it is unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
