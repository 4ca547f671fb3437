//go:build rp2040 || rp2350

package main

import (
	"machine"

	"tinygo.org/x/drivers/easystepper"

	"coilstep/core"
)

// RPGPIODriver implements core.GPIODriver on machine pins
type RPGPIODriver struct {
	// Track configured pins to avoid reconfiguring them
	configuredPins map[core.GPIOPin]machine.Pin
}

// NewRPGPIODriver creates a GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	// GPIO numbers map directly to machine pins
	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = machinePin
	return nil
}

// SetPin sets the pin to high (true) or low (false)
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		machinePin = d.configuredPins[pin]
	}
	machinePin.Set(value)
	return nil
}

// GetPin reads the current pin state
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	machinePin, exists := d.configuredPins[pin]
	if !exists {
		return false, nil
	}
	return machinePin.Get(), nil
}

// coilConfig describes the ULN2003 wiring. StepCount and RPM only satisfy
// the driver's validation; stepping is timed by the control loop.
func coilConfig(base machine.Pin) easystepper.DeviceConfig {
	return easystepper.DeviceConfig{
		Pin1:      base,
		Pin2:      base + 1,
		Pin3:      base + 2,
		Pin4:      base + 3,
		StepCount: core.RotationSteps,
		RPM:       1,
		Mode:      easystepper.ModeFour,
	}
}

// setupCoils configures the coil pins as outputs through easystepper,
// powers them off and returns a GPIO driver that already owns them, so
// the phase driver does not configure them a second time
func setupCoils(base machine.Pin) (*RPGPIODriver, error) {
	cfg := coilConfig(base)
	dev, err := easystepper.New(cfg)
	if err != nil {
		return nil, err
	}
	dev.Configure()
	dev.Off()

	d := NewRPGPIODriver()
	for _, pin := range [core.PhaseCount]machine.Pin{cfg.Pin1, cfg.Pin2, cfg.Pin3, cfg.Pin4} {
		d.configuredPins[core.GPIOPin(pin)] = pin
	}
	return d, nil
}
