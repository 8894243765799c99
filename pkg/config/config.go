// Package config loads server settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/retrotk/rtk-go/pkg/dispatch"
	"github.com/retrotk/rtk-go/pkg/loop"
	"github.com/retrotk/rtk-go/pkg/pump"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// DefaultDateFormat is the strftime layout for diagnostic timestamps.
const DefaultDateFormat = "%Y-%m-%d %H:%M:%S"

// Config holds the server settings.
type Config struct {
	// ListenAddress is the TCP address game clients connect to.
	ListenAddress string `yaml:"listen_address"`

	// MaxSessions is the session registry capacity.
	MaxSessions int `yaml:"max_sessions"`

	// MaxFrameLength bounds a frame's length field.
	MaxFrameLength int `yaml:"max_frame_length"`

	// MaxReadPerTick bounds bytes read per session per iteration.
	MaxReadPerTick int `yaml:"max_read_per_tick"`

	// IdleInterval is the sleep between loop iterations.
	IdleInterval time.Duration `yaml:"idle_interval"`

	// SessionTimeout tears down sessions that sent nothing for this long.
	// Zero disables idle reaping.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// CipherSeed seeds every session's key schedules.
	CipherSeed string `yaml:"cipher_seed"`

	// DumpFile receives the hex/character packet dump. Empty disables it.
	DumpFile string `yaml:"dump_file"`

	// CaptureFile receives the binary packet capture. Empty disables it.
	CaptureFile string `yaml:"capture_file"`

	// LogFile receives operational logs in addition to stdout.
	LogFile string `yaml:"log_file"`

	// DateFormat is the strftime layout for dump timestamps.
	DateFormat string `yaml:"date_format"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// AdminAddress serves /metrics, /healthz and /status. Empty disables it.
	AdminAddress string `yaml:"admin_address"`

	// Advertise announces the listener over mDNS.
	Advertise bool `yaml:"advertise"`

	// InstanceName is the advertised service instance.
	InstanceName string `yaml:"instance_name"`

	// Console enables the interactive operator console.
	Console bool `yaml:"console"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ListenAddress:  ":2000",
		MaxSessions:    1024,
		MaxFrameLength: dispatch.DefaultMaxFrameLength,
		MaxReadPerTick: pump.DefaultMaxReadPerTick,
		IdleInterval:   loop.DefaultIdleInterval,
		SessionTimeout: 5 * time.Minute,
		CipherSeed:     "rtk",
		DateFormat:     DefaultDateFormat,
		LogLevel:       "info",
		InstanceName:   "rtk",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping fields the document omits, and
// validates the result. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	switch {
	case c.ListenAddress == "":
		return fmt.Errorf("%w: listen_address is required", ErrInvalid)
	case c.MaxSessions <= 0:
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrInvalid, c.MaxSessions)
	case c.MaxFrameLength < 4 || c.MaxFrameLength > 0xFFFF:
		return fmt.Errorf("%w: max_frame_length must be in [4, 65535], got %d", ErrInvalid, c.MaxFrameLength)
	case c.MaxReadPerTick <= 0:
		return fmt.Errorf("%w: max_read_per_tick must be positive, got %d", ErrInvalid, c.MaxReadPerTick)
	case c.IdleInterval <= 0:
		return fmt.Errorf("%w: idle_interval must be positive, got %s", ErrInvalid, c.IdleInterval)
	case c.SessionTimeout < 0:
		return fmt.Errorf("%w: session_timeout must not be negative, got %s", ErrInvalid, c.SessionTimeout)
	case c.CipherSeed == "":
		return fmt.Errorf("%w: cipher_seed is required", ErrInvalid)
	case c.DateFormat == "":
		return fmt.Errorf("%w: date_format is required", ErrInvalid)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log_level %q", ErrInvalid, name)
	}
}
