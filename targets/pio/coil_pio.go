//go:build rp2040 || rp2350

// Package pio drives the four coil lines from a PIO state machine.
package pio

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"coilstep/core"
)

// buildCoilProgram latches each 32-bit FIFO word onto the four coil pins.
// Only the low 4 bits of a word are used: bit n drives phase n.
func buildCoilProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestPins, 4).Encode(), // 1: out pins, 4
		// .wrap
	}
}

const coilPIOOrigin = -1 // Let the allocator pick an offset

// CoilPIO implements core.PhaseDriver on a PIO state machine. Phase changes
// are pushed as a whole line mask so all four pins switch together.
type CoilPIO struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	base   machine.Pin
	offset uint8
	mask   uint8
}

// NewCoilPIO creates a driver for coil pins base..base+3
// pioNum: 0 for PIO0, 1 for PIO1
// smNum: 0-3 for state machine number
func NewCoilPIO(pioNum, smNum uint8, base machine.Pin) *CoilPIO {
	pioHW := rp2pio.PIO0
	if pioNum != 0 {
		pioHW = rp2pio.PIO1
	}
	return &CoilPIO{
		pio:  pioHW,
		sm:   pioHW.StateMachine(smNum),
		base: base,
	}
}

// Init loads the program and starts the state machine with all lines low
func (c *CoilPIO) Init() error {
	// Claim the state machine first
	c.sm.TryClaim()

	program := buildCoilProgram()
	offset, err := c.pio.AddProgram(program, coilPIOOrigin)
	if err != nil {
		return err
	}
	c.offset = offset

	for i := machine.Pin(0); i < core.PhaseCount; i++ {
		(c.base + i).Configure(machine.PinConfig{Mode: c.pio.PinMode()})
	}

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(c.base, core.PhaseCount)
	// Shift right, no autopull (explicit PULL), 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)

	c.sm.Init(offset, cfg)

	// Pin directions must be set after Init
	c.sm.SetPindirsConsecutive(c.base, core.PhaseCount, true)
	c.sm.SetPinsConsecutive(c.base, core.PhaseCount, false)

	c.sm.SetEnabled(true)
	return nil
}

// SetPhase drives one phase line and pushes the new mask
func (c *CoilPIO) SetPhase(phase uint8, on bool) error {
	bit := uint8(1) << (phase % core.PhaseCount)
	if on {
		c.mask |= bit
	} else {
		c.mask &^= bit
	}
	c.push()
	return nil
}

// AllOff drives every coil line low
func (c *CoilPIO) AllOff() error {
	c.mask = 0
	c.push()
	return nil
}

// Mask returns the line mask last pushed
func (c *CoilPIO) Mask() uint8 {
	return c.mask
}

func (c *CoilPIO) push() {
	// Busy wait, the program drains a word every two cycles
	for c.sm.IsTxFIFOFull() {
	}
	c.sm.TxPut(uint32(c.mask))
}
