package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBuffer(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	buf := NewSliceInputBuffer(data)

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	bufData := buf.Data()
	if len(bufData) != 5 {
		t.Errorf("Expected 5 bytes in data, got %d", len(bufData))
	}

	buf.Pop(2)
	if buf.Available() != 3 {
		t.Errorf("After popping 2, expected 3 bytes available, got %d", buf.Available())
	}

	bufData = buf.Data()
	if len(bufData) != 3 || bufData[0] != 3 {
		t.Errorf("After popping 2, expected first byte to be 3, got %d", bufData[0])
	}

	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Expected over-pop to empty the buffer, got %d", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	scratch.Output([]byte{4, 5})

	if !bytes.Equal(scratch.Result(), []byte{1, 2, 3, 4, 5}) {
		t.Errorf("Unexpected result %v", scratch.Result())
	}

	scratch.Reset()
	if len(scratch.Result()) != 0 {
		t.Errorf("Expected empty result after reset, got %d bytes", len(scratch.Result()))
	}
}

func TestScratchOutputDropsWholeWrites(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output(make([]byte, MessageMax-2))
	scratch.Output([]byte{1, 2, 3})

	if len(scratch.Result()) != MessageMax-2 {
		t.Errorf("Expected the oversized write to be dropped, got %d bytes", len(scratch.Result()))
	}
	if scratch.Dropped() != 1 {
		t.Errorf("Expected 1 dropped write, got %d", scratch.Dropped())
	}

	scratch.Output([]byte{9, 9})
	if len(scratch.Result()) != MessageMax {
		t.Errorf("Expected a fitting write to be kept, got %d bytes", len(scratch.Result()))
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(8)

	if !fifo.IsEmpty() {
		t.Error("Expected new FIFO to be empty")
	}
	if fifo.Free() != 7 {
		t.Errorf("Expected 7 bytes free, got %d", fifo.Free())
	}

	n := fifo.Write([]byte{1, 2, 3, 4, 5})
	if n != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", n)
	}

	out := make([]byte, 3)
	if n := fifo.Read(out); n != 3 || !bytes.Equal(out, []byte{1, 2, 3}) {
		t.Errorf("Expected to read [1 2 3], got %v (%d)", out[:n], n)
	}

	// Wrap around the end of the ring
	n = fifo.Write([]byte{6, 7, 8, 9, 10, 11})
	if n != 5 {
		t.Errorf("Expected to write 5 bytes into a ring with 5 free, wrote %d", n)
	}
	if !bytes.Equal(fifo.Data(), []byte{4, 5, 6, 7, 8, 9, 10}) {
		t.Errorf("Unexpected wrapped data %v", fifo.Data())
	}

	fifo.Pop(4)
	if !bytes.Equal(fifo.Data(), []byte{8, 9, 10}) {
		t.Errorf("Unexpected data after pop %v", fifo.Data())
	}

	fifo.Pop(100)
	if !fifo.IsEmpty() {
		t.Error("Expected over-pop to empty the FIFO")
	}

	fifo.Write([]byte{1})
	fifo.Reset()
	if fifo.Available() != 0 {
		t.Errorf("Expected empty FIFO after reset, got %d", fifo.Available())
	}
}
