package core

// PhaseCount is the number of coil phases on the motor.
const PhaseCount = 4

// PhaseDriver drives the four coil phase outputs of a unipolar stepper.
// Implementations can use plain GPIO, PIO or a recording fake.
type PhaseDriver interface {
	// SetPhase drives one phase line (0..3) high or low
	SetPhase(phase uint8, on bool) error

	// AllOff de-energizes every phase line
	AllOff() error
}

// GPIOPhases maps the four phases onto GPIO pins through a GPIODriver.
type GPIOPhases struct {
	gpio GPIODriver
	pins [PhaseCount]GPIOPin
}

// NewGPIOPhases configures the four pins as outputs, driven low.
func NewGPIOPhases(gpio GPIODriver, pins [PhaseCount]GPIOPin) (*GPIOPhases, error) {
	for _, pin := range pins {
		if err := gpio.ConfigureOutput(pin); err != nil {
			return nil, err
		}
		if err := gpio.SetPin(pin, false); err != nil {
			return nil, err
		}
	}
	return &GPIOPhases{gpio: gpio, pins: pins}, nil
}

// ConsecutivePins returns the pins base, base+1, base+2, base+3.
// Boards usually wire the coils to four adjacent port bits.
func ConsecutivePins(base GPIOPin) [PhaseCount]GPIOPin {
	return [PhaseCount]GPIOPin{base, base + 1, base + 2, base + 3}
}

// SetPhase drives the pin of the given phase
func (g *GPIOPhases) SetPhase(phase uint8, on bool) error {
	return g.gpio.SetPin(g.pins[phase%PhaseCount], on)
}

// AllOff drives all four pins low
func (g *GPIOPhases) AllOff() error {
	var firstErr error
	for _, pin := range g.pins {
		if err := g.gpio.SetPin(pin, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pins returns the phase-to-pin mapping
func (g *GPIOPhases) Pins() [PhaseCount]GPIOPin {
	return g.pins
}
