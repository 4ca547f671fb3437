//go:build rp2040 || rp2350

package main

import (
	"machine"
)

// usbChunk is the most bytes moved from USB into the loop per iteration
const usbChunk = 64

// InitUSB configures USB CDC-ACM. On the RP2040 machine.Serial is the USB
// CDC endpoint; TinyGo's runtime provides the descriptors.
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBAvailable returns the number of bytes buffered from the host
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBReadInto reads up to len(buf) buffered bytes without blocking
func USBReadInto(buf []byte) int {
	avail := USBAvailable()
	if avail > len(buf) {
		avail = len(buf)
	}
	n := 0
	for n < avail {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// USBWriteBytes writes data to the host
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
