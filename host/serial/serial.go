package serial

import (
	"errors"
	"io"
)

// ErrNoDevice is returned when no device path is configured
var ErrNoDevice = errors.New("serial device not configured")

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - An in-process simulator connection (net.Pipe)
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device" env:"COILSTEP_DEVICE"`

	// Baud rate (USB CDC ignores this)
	Baud int `yaml:"baud" env:"COILSTEP_BAUD"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `yaml:"read_timeout_ms" env:"COILSTEP_READ_TIMEOUT_MS"`
}

// DefaultConfig returns a default configuration for the coilstep firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// Validate checks that the configuration can be opened
func (c *Config) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		return errors.New("baud rate must be positive")
	}
	if c.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}
	return nil
}
