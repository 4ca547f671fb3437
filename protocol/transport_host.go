package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	// ErrFrameTooLong is returned when a payload does not fit in one frame
	ErrFrameTooLong = errors.New("payload exceeds frame capacity")
	// ErrSequenceMismatch is returned when a reply acknowledges the wrong request
	ErrSequenceMismatch = errors.New("reply sequence mismatch")
	// ErrTimeout is returned when no reply arrives in time
	ErrTimeout = errors.New("reply timeout")
	// ErrClosed is returned once the transport has been closed
	ErrClosed = errors.New("transport closed")
	// ErrRejected is returned when the device keeps rejecting a request
	ErrRejected = errors.New("request rejected by device")
)

// DefaultTimeout is the reply timeout used by Request
const DefaultTimeout = 2 * time.Second

// HostTransport is the host side of the link. It frames one request at a
// time, waits for the reply frame and tracks the sequence the device
// expects. A NAK makes it adopt the device's sequence and retry once.
type HostTransport struct {
	port io.ReadWriteCloser

	// Sequence tracking (0x10-0x1F for host messages)
	currentSeq uint32 // atomic uint8 stored as uint32

	// Synchronization state
	isSynchronized uint32 // atomic bool (0 = false, 1 = true)

	inputBuffer *FifoBuffer
	frameChan   chan *Message

	writeMutex   sync.Mutex
	readMutex    sync.Mutex
	requestMutex sync.Mutex

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
	readErr   atomic.Value // error that ended the read loop
}

// Message represents a parsed frame
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// IsNak reports whether the frame is an empty negative acknowledgement
func (m *Message) IsNak() bool {
	return len(m.Payload) == 0
}

// NewHostTransport creates a new host-side transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:        port,
		currentSeq:  MessageDest, // Start at 0x10
		inputBuffer: NewFifoBuffer(MessageMax),
		frameChan:   make(chan *Message, 16),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}

	atomic.StoreUint32(&t.isSynchronized, 1) // Start synchronized

	go t.readLoop()

	return t
}

// Request sends req and returns the reply payload using DefaultTimeout
func (t *HostTransport) Request(req Request) ([]byte, error) {
	return t.RequestWithTimeout(req, DefaultTimeout)
}

// RequestWithTimeout sends req and waits up to timeout for each reply.
// The returned slice is owned by the caller.
func (t *HostTransport) RequestWithTimeout(req Request, timeout time.Duration) ([]byte, error) {
	t.requestMutex.Lock()
	defer t.requestMutex.Unlock()

	desc := req.Bytes()
	return t.exchange(desc[:], timeout)
}

// SendPayload frames an arbitrary payload, mostly useful for diagnostics
func (t *HostTransport) SendPayload(payload []byte, timeout time.Duration) ([]byte, error) {
	t.requestMutex.Lock()
	defer t.requestMutex.Unlock()

	return t.exchange(payload, timeout)
}

func (t *HostTransport) exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	if len(payload) > ReplyMax {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, len(payload), ReplyMax)
	}

	t.drainFrames()

	for attempt := 0; attempt < 2; attempt++ {
		seq := uint8(atomic.LoadUint32(&t.currentSeq))
		msg := AppendFrame(make([]byte, 0, len(payload)+MessageLengthMin), seq, payload)

		if err := t.writeMessage(msg); err != nil {
			t.restartSequence()
			return nil, fmt.Errorf("failed to write message: %w", err)
		}

		resp, err := t.waitFrame(timeout)
		if err != nil {
			t.restartSequence()
			return nil, err
		}

		expected := NextSequence(seq)
		if resp.Sequence == expected {
			atomic.StoreUint32(&t.currentSeq, uint32(expected))
			return resp.Payload, nil
		}

		if resp.IsNak() {
			// Device expects a different sequence, adopt it
			atomic.StoreUint32(&t.currentSeq, uint32(resp.Sequence))
			continue
		}

		t.restartSequence()
		return nil, fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrSequenceMismatch, expected, resp.Sequence)
	}

	t.restartSequence()
	return nil, ErrRejected
}

// restartSequence forgets the device's sequence after a failed exchange.
// The device may or may not have run the request, and a NAK is
// indistinguishable from an empty reply to the next sequence, so the next
// request starts over at MessageDest, which the device always accepts.
func (t *HostTransport) restartSequence() {
	atomic.StoreUint32(&t.currentSeq, MessageDest)
}

// writeMessage sends a frame to the port
func (t *HostTransport) writeMessage(msg []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	return nil
}

// waitFrame waits for the next frame from the device
func (t *HostTransport) waitFrame(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-t.frameChan:
		return msg, nil

	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)

	case <-t.doneChan:
		if err, ok := t.readErr.Load().(error); ok && err != nil {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, ErrClosed
	}
}

// drainFrames drops stale frames left over from an earlier timeout
func (t *HostTransport) drainFrames() {
	for {
		select {
		case <-t.frameChan:
		default:
			return
		}
	}
}

// readLoop continuously reads from the port and parses frames
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)

	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.processMessages(buffer[:n])
		}
		if err != nil {
			if isTerminal(err) {
				t.readErr.Store(err)
				return
			}
			select {
			case <-t.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// isTerminal reports read errors after which the port will not recover
func isTerminal(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET)
}

// processMessages appends chunk to the input buffer and dispatches every
// complete frame
func (t *HostTransport) processMessages(chunk []byte) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	t.inputBuffer.Write(chunk)
	data := t.inputBuffer.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}

			if syncPos < 0 {
				data = nil
				break
			}
			data = data[syncPos+1:]
			t.setSynchronized(true)
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin {
			t.setSynchronized(false)
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			t.setSynchronized(false)
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			t.setSynchronized(false)
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])

		msg := &Message{
			Length:   data[MessagePositionLen],
			Sequence: data[MessagePositionSeq],
			Payload:  payload,
			CRC:      frameCRC,
		}
		data = data[msgLen:]

		t.dispatchMessage(msg)
	}

	consumed := t.inputBuffer.Available() - len(data)
	if consumed > 0 {
		t.inputBuffer.Pop(consumed)
	}
}

// dispatchMessage queues a frame for the waiting request
func (t *HostTransport) dispatchMessage(msg *Message) {
	select {
	case t.frameChan <- msg:
	default:
		// Queue full, drop oldest
		select {
		case <-t.frameChan:
		default:
		}
		t.frameChan <- msg
	}
}

// Close stops the transport and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			// Closing the port unblocks a pending Read
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset resets the sequence and parser state
func (t *HostTransport) Reset() {
	t.requestMutex.Lock()
	defer t.requestMutex.Unlock()

	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	t.drainFrames()

	t.readMutex.Lock()
	t.inputBuffer.Reset()
	t.readMutex.Unlock()
}

func (t *HostTransport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *HostTransport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}

// CurrentSequence returns the sequence the next request will carry
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
