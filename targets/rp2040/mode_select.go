//go:build rp2040 || rp2350

package main

import "machine"

// ModeConfig selects how the coils are driven
type ModeConfig struct {
	// CoilBase is the first of four consecutive coil pins (IN1..IN4)
	CoilBase machine.Pin

	// UsePIO drives the coils from a PIO state machine instead of GPIO writes
	UsePIO bool

	// WatchdogMillis is the watchdog timeout; 0 leaves it disabled
	WatchdogMillis uint32
}

// GetMode returns the build's mode configuration
func GetMode() ModeConfig {
	return ModeConfig{
		CoilBase:       machine.GPIO2,
		UsePIO:         false,
		WatchdogMillis: 1000,
	}
}
