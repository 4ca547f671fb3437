// Package config loads coilstep host settings from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"coilstep/host/serial"
)

// Config holds everything the host tools need
type Config struct {
	Serial serial.Config `yaml:"serial"`

	// HTTP bridge listen address
	Listen string `yaml:"listen" env:"COILSTEP_LISTEN"`

	// Per-request reply timeout
	RequestTimeout time.Duration `yaml:"request_timeout" env:"COILSTEP_REQUEST_TIMEOUT"`

	// Serve against the built-in simulator instead of a serial device
	Simulate bool `yaml:"simulate" env:"COILSTEP_SIMULATE"`

	// Simulator loop period
	SimInterval time.Duration `yaml:"sim_interval" env:"COILSTEP_SIM_INTERVAL"`

	LogLevel string `yaml:"log_level" env:"COILSTEP_LOG_LEVEL"`

	// Forward firmware debug lines to the log (simulator only)
	Debug bool `yaml:"debug" env:"COILSTEP_DEBUG"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Serial:         *serial.DefaultConfig("/dev/ttyACM0"),
		Listen:         "127.0.0.1:8080",
		RequestTimeout: 2 * time.Second,
		SimInterval:    time.Millisecond,
		LogLevel:       "info",
	}
}

// Load reads path (optional) over the defaults, then applies the environment
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes YAML data over the defaults, then applies the environment
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if len(data) > 0 {
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("unable to unmarshal yaml: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("unable to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the tools cannot use
func (c *Config) Validate() error {
	if !c.Simulate {
		if err := c.Serial.Validate(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.SimInterval <= 0 {
		return errors.New("simulator interval must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level
func (c *Config) Level() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
