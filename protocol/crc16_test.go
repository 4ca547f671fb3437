package protocol

import (
	"bytes"
	"testing"
)

func TestCRC16(t *testing.T) {
	// Empty input leaves the initial value
	if got := CRC16([]byte{}); got != 0xFFFF {
		t.Errorf("CRC16 of empty input: expected 0xFFFF, got 0x%04X", got)
	}

	// Appending the big-endian CRC to the header makes a valid frame
	header := []byte{5, MessageDest}
	crc := CRC16(header)
	frame := AppendFrame(nil, MessageDest, nil)
	want := []byte{5, MessageDest, uint8(crc >> 8), uint8(crc), MessageValueSync}
	if !bytes.Equal(frame, want) {
		t.Errorf("Expected empty frame %v, got %v", want, frame)
	}
}

func TestCRC16Consistency(t *testing.T) {
	// Test that same input produces same output
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	crc1 := CRC16(data)
	crc2 := CRC16(data)

	if crc1 != crc2 {
		t.Errorf("CRC16 not consistent: first=%04X, second=%04X", crc1, crc2)
	}
}

func TestCRC16Different(t *testing.T) {
	// Test that different inputs produce different outputs
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}

func TestAppendFrame(t *testing.T) {
	payload := []byte("007")
	frame := AppendFrame([]byte{0xAA}, 0x13, payload)

	// Existing content is kept
	if frame[0] != 0xAA {
		t.Fatalf("Expected prefix to be kept, got %v", frame)
	}
	frame = frame[1:]

	if int(frame[MessagePositionLen]) != len(frame) {
		t.Errorf("Length byte %d does not match frame size %d", frame[MessagePositionLen], len(frame))
	}
	if frame[MessagePositionSeq] != 0x13 {
		t.Errorf("Expected seq 0x13, got 0x%02x", frame[MessagePositionSeq])
	}
	if !bytes.Equal(frame[MessageHeaderSize:len(frame)-MessageTrailerSize], payload) {
		t.Errorf("Payload mismatch in %v", frame)
	}
	crc := CRC16(frame[:len(frame)-MessageTrailerSize])
	if frame[len(frame)-MessageTrailerCRC] != uint8(crc>>8) || frame[len(frame)-MessageTrailerCRC+1] != uint8(crc) {
		t.Error("CRC mismatch")
	}
	if frame[len(frame)-1] != MessageValueSync {
		t.Error("Missing sync byte")
	}
}

func TestNextSequence(t *testing.T) {
	testCases := []struct {
		seq, next uint8
	}{
		{0x10, 0x11},
		{0x1E, 0x1F},
		{0x1F, 0x10},
	}
	for _, tc := range testCases {
		if got := NextSequence(tc.seq); got != tc.next {
			t.Errorf("NextSequence(0x%02x): expected 0x%02x, got 0x%02x", tc.seq, tc.next, got)
		}
	}
}
