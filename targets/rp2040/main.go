//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"coilstep/core"
	"coilstep/targets/pio"
)

var (
	loop *core.Loop

	// Debug counters
	msgerrors                uint32
	consecutiveWriteFailures uint32
)

// ledBlink blinks the LED a number of times for diagnostics
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
}

// newPhaseDriver builds the coil output selected by mode
func newPhaseDriver(mode ModeConfig) (core.PhaseDriver, error) {
	if mode.UsePIO {
		drv := pio.NewCoilPIO(0, 0, mode.CoilBase)
		if err := drv.Init(); err != nil {
			return nil, err
		}
		return drv, nil
	}

	gpio, err := setupCoils(mode.CoilBase)
	if err != nil {
		return nil, err
	}
	return core.NewGPIOPhases(gpio, core.ConsecutivePins(core.GPIOPin(mode.CoilBase)))
}

func main() {
	InitUSB()

	// Clear any watchdog state left from before the reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitClock()

	mode := GetMode()
	phases, err := newPhaseDriver(mode)
	if err != nil {
		// Without coil outputs there is nothing to run
		for {
			ledBlink(3)
			time.Sleep(time.Second)
		}
	}

	loop = core.NewLoop(core.NewMotor(phases))

	// LED stays on while the loop runs
	ledBlink(1)
	machine.LED.High()

	if mode.WatchdogMillis > 0 {
		machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: mode.WatchdogMillis})
		machine.Watchdog.Start()
	}

	var rx [usbChunk]byte
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					loop.Reset()
				}
			}()

			if n := USBReadInto(rx[:]); n > 0 {
				if loop.Feed(rx[:n]) < n {
					msgerrors++
				}
			}

			loop.Poll(GetHardwareTime())
			writeUSB()
		}()

		if mode.WatchdogMillis > 0 {
			machine.Watchdog.Update()
		}

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// writeUSB writes queued frames to the host
func writeUSB() {
	result := loop.Output()
	if len(result) == 0 {
		return
	}

	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely disconnected: drop stale output and resync on the next frame
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				loop.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	loop.ResetOutput()
}
