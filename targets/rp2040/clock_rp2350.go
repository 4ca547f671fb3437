//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2350 TIMER0 sits at a different address than the RP2040 timer
const (
	timerBase     = 0x400B0000
	timerTimeRawL = timerBase + 0x28 // Raw timer low (no latching)
)

var timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))

// InitClock settles the 1MHz microsecond timer.
// The runtime has already started the tick generators.
func InitClock() {
	_ = timerRawL.Get()
	_ = timerRawL.Get()
	_ = timerRawL.Get()
}

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRawL.Get()
}
