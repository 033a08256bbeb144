// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Player  PlayerConfig  `yaml:"player"`
	Decoder DecoderConfig `yaml:"decoder"`
	Focus   FocusConfig   `yaml:"focus"`
	Admin   AdminConfig   `yaml:"admin"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr            string      `yaml:"addr" default:":8080" validate:"required"`
	ShutdownTimeout int         `yaml:"shutdown_timeout_sec" default:"5" validate:"gte=1,lte=60"`
	Hooks           HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlayerConfig represents playback engine configuration.
type PlayerConfig struct {
	Namespace       string `yaml:"namespace" default:"AudioPlayer" validate:"required"`
	Channel         string `yaml:"channel" default:"Content" validate:"required"`
	DecoderPoolSize int    `yaml:"decoder_pool_size" default:"2" validate:"gte=1,lte=3"`
	EventBufferSize int    `yaml:"event_buffer_size" default:"64" validate:"gte=1,lte=4096"`
}

// DecoderConfig represents decoder configuration.
type DecoderConfig struct {
	TickMs           int   `yaml:"tick_ms" default:"20" validate:"gte=5,lte=1000"`
	LoadTimeoutMs    int   `yaml:"load_timeout_ms" default:"10000" validate:"gte=100"`
	StallThresholdMs int   `yaml:"stall_threshold_ms" default:"500" validate:"gte=50"`
	MaxSourceBytes   int64 `yaml:"max_source_bytes" default:"268435456" validate:"gte=1024"`
}

// Tick returns the render tick as a duration.
func (d DecoderConfig) Tick() time.Duration {
	return time.Duration(d.TickMs) * time.Millisecond
}

// LoadTimeout returns the source load timeout as a duration.
func (d DecoderConfig) LoadTimeout() time.Duration {
	return time.Duration(d.LoadTimeoutMs) * time.Millisecond
}

// StallThreshold returns how long a read may block before an underrun is reported.
func (d DecoderConfig) StallThreshold() time.Duration {
	return time.Duration(d.StallThresholdMs) * time.Millisecond
}

// FocusConfig represents the in-process focus manager configuration.
type FocusConfig struct {
	GrantDelayMs int `yaml:"grant_delay_ms" validate:"gte=0,lte=10000"`
}

// GrantDelay returns the delay before a channel grant is delivered.
func (f FocusConfig) GrantDelay() time.Duration {
	return time.Duration(f.GrantDelayMs) * time.Millisecond
}

// AdminConfig represents control API authentication.
// An empty token leaves the control routes open.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Output string `yaml:"output" default:"stdout" validate:"oneof=stdout stderr file"`
	File   string `yaml:"file" validate:"required_if=Output file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	return Parse([]byte("{}"))
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("AUDIOPLAYER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUDIOPLAYER_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid AUDIOPLAYER_POOL_SIZE: %s", v)
		}
		c.Player.DecoderPoolSize = n
	}
	if v := os.Getenv("AUDIOPLAYER_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("AUDIOPLAYER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
