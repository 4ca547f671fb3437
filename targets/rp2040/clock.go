//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 timer peripheral, raw low word of the 1MHz counter
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x28
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock settles the 1MHz microsecond timer
func InitClock() {
	_ = timerRAWL.Get()
}

// GetHardwareTime returns the low 32 bits of the microsecond counter.
// core.Loop handles its rollover.
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}
