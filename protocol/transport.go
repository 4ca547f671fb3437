package protocol

import "sync/atomic"

// RequestHandler handles one request payload and appends the reply payload
// to reply, returning the extended slice. payload is only valid during the
// call.
type RequestHandler func(payload []byte, reply []byte) []byte

// TransportStats counts frames seen by the device transport
type TransportStats struct {
	Frames     uint32 // frames dispatched
	Naks       uint32 // frames rejected for sequence
	Resyncs    uint32 // framing errors that dropped synchronization
	HostResets uint32
}

// Transport is the device side of the link: it decodes request frames from
// the input buffer, hands each payload to the handler and frames the reply.
// Every frame the device sends carries the sequence it expects next, so a
// reply doubles as the acknowledgement and an empty frame with an
// unchanged sequence is a NAK.
type Transport struct {
	isSynchronized uint32 // atomic bool (0 = false, 1 = true)
	nextSequence   uint32 // atomic uint8 stored as uint32, expected from host

	output  OutputBuffer
	handler RequestHandler

	reply []byte // reused reply scratch
	frame []byte // reused frame scratch

	stats TransportStats

	resetCallback func() // Called when host reset is detected
	flushCallback func() // Called after each reply frame is queued
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler RequestHandler) *Transport {
	return &Transport{
		isSynchronized: 1,
		nextSequence:   MessageDest,
		output:         output,
		handler:        handler,
		reply:          make([]byte, 0, ReplyMax),
		frame:          make([]byte, 0, MessageLengthMax),
	}
}

// Receive processes incoming data from the input buffer, consuming every
// complete frame and leaving a trailing partial frame in place.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			// Skip garbage up to and including the next sync byte
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
			t.sendNak()
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
			t.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			t.desync()
			continue
		}

		// Wait for full message
		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			t.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			t.desync()
			continue
		}

		payload := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		expected := uint8(atomic.LoadUint32(&t.nextSequence))
		if seq == MessageDest && expected != MessageDest {
			// Host restarted its sequence
			atomic.StoreUint32(&t.nextSequence, MessageDest)
			expected = MessageDest
			t.stats.HostResets++
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if seq != expected {
			t.stats.Naks++
			t.sendNak()
			continue
		}

		atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(seq)))
		t.stats.Frames++
		t.dispatch(payload)
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs the handler and frames its reply
func (t *Transport) dispatch(payload []byte) {
	reply := t.reply[:0]
	if t.handler != nil {
		reply = t.handler(payload, reply)
	}
	if len(reply) > ReplyMax {
		reply = reply[:ReplyMax]
	}
	t.sendFrame(reply)
}

// sendNak sends an empty frame carrying the sequence the device expects
func (t *Transport) sendNak() {
	t.sendFrame(nil)
}

func (t *Transport) sendFrame(payload []byte) {
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.frame = AppendFrame(t.frame[:0], seq, payload)
	t.output.Output(t.frame)

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

func (t *Transport) desync() {
	t.stats.Resyncs++
	t.setSynchronized(false)
}

// Reset resets the transport state (useful after USB disconnect/reconnect)
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.nextSequence, MessageDest)

	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// Stats returns the frame counters
func (t *Transport) Stats() TransportStats {
	return t.stats
}

// ExpectedSequence returns the sequence the next request must carry
func (t *Transport) ExpectedSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.nextSequence))
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback run after each frame is queued, so the
// platform can push it out immediately
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// Helper methods for atomic operations
func (t *Transport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *Transport) setSynchronized(val bool) {
	if val {
		atomic.StoreUint32(&t.isSynchronized, 1)
	} else {
		atomic.StoreUint32(&t.isSynchronized, 0)
	}
}
