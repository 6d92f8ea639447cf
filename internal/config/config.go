package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"askmarie/internal/logging"
)

const (
	envPrefix     = "ASKMARIE"
	configFileEnv = "ASKMARIE_CONFIG_FILE"

	BackendFFMPEG    = "ffmpeg"
	BackendPortAudio = "portaudio"
)

// Config stores runtime configuration for the voice client.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Hotkey   HotkeyConfig   `mapstructure:"hotkey"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type ServiceConfig struct {
	EndpointURL string        `mapstructure:"endpoint_url"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AudioConfig struct {
	Backend         string        `mapstructure:"backend"`
	RecorderCommand string        `mapstructure:"recorder_command"`
	InputFormat     string        `mapstructure:"input_format"`
	InputDevice     string        `mapstructure:"input_device"`
	SampleRate      int           `mapstructure:"sample_rate"`
	Channels        int           `mapstructure:"channels"`
	DurationCeiling time.Duration `mapstructure:"duration_ceiling"`
}

type PlaybackConfig struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Buffer     time.Duration `mapstructure:"buffer"`
}

type HotkeyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Combo is the key chord, written "ctrl+shift+r" in files and env vars.
	Combo []string `mapstructure:"combo"`
}

type SessionConfig struct {
	PipelineTimeout time.Duration `mapstructure:"pipeline_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.endpoint_url", "http://localhost:5000/speech-to-text-and-respond")
	v.SetDefault("service.base_url", "")
	v.SetDefault("service.timeout", "60s")
	v.SetDefault("audio.backend", BackendFFMPEG)
	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.duration_ceiling", "5s")
	v.SetDefault("playback.sample_rate", 44100)
	v.SetDefault("playback.buffer", "100ms")
	v.SetDefault("hotkey.enabled", true)
	v.SetDefault("hotkey.combo", "ctrl+shift+r")
	v.SetDefault("session.pipeline_timeout", "2m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logging.FormatText)
	v.SetDefault("metrics.address", "")
}

// Load resolves configuration from defaults, an optional YAML file, and
// ASKMARIE_* environment variables, in that order of precedence.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, explicit := configFilePath()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config %s: %w", file, err)
			}
			file = ""
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc("+"),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file

	applyFallbacks(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configFilePath() (string, bool) {
	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		return path, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "askmarie", "config.yaml"), false
}

func applyFallbacks(cfg *Config) {
	cfg.Service.EndpointURL = strings.TrimSpace(cfg.Service.EndpointURL)
	cfg.Service.BaseURL = strings.TrimSpace(cfg.Service.BaseURL)
	if cfg.Service.Timeout <= 0 {
		cfg.Service.Timeout = 60 * time.Second
	}

	cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = BackendFFMPEG
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.DurationCeiling <= 0 {
		cfg.Audio.DurationCeiling = 5 * time.Second
	}

	if cfg.Playback.SampleRate <= 0 {
		cfg.Playback.SampleRate = 44100
	}
	if cfg.Playback.Buffer <= 0 {
		cfg.Playback.Buffer = 100 * time.Millisecond
	}

	combo := make([]string, 0, len(cfg.Hotkey.Combo))
	for _, key := range cfg.Hotkey.Combo {
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "" {
			combo = append(combo, key)
		}
	}
	if len(combo) == 0 {
		combo = []string{"ctrl", "shift", "r"}
	}
	cfg.Hotkey.Combo = combo

	if cfg.Session.PipelineTimeout <= 0 {
		cfg.Session.PipelineTimeout = 2 * time.Minute
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Metrics.Address = strings.TrimSpace(cfg.Metrics.Address)
}

func (c Config) validate() error {
	switch c.Audio.Backend {
	case BackendFFMPEG, BackendPortAudio:
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}
