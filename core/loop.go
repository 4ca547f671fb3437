package core

import "coilstep/protocol"

// InputBufferSize is the receive FIFO capacity
const InputBufferSize = 256

// Loop is the cooperative control loop: each Poll services the transport,
// which dispatches requests synchronously, and then ticks the motor with the
// time elapsed since the previous Poll. Everything runs on the caller's
// goroutine.
type Loop struct {
	motor      *Motor
	dispatcher *Dispatcher
	transport  *protocol.Transport

	input  *protocol.FifoBuffer
	output *protocol.ScratchOutput

	lastPoll uint32
	started  bool
	dropped  uint32
}

// NewLoop wires a dispatcher and a device transport around m
func NewLoop(m *Motor) *Loop {
	l := &Loop{
		motor:      m,
		dispatcher: NewDispatcher(m),
		input:      protocol.NewFifoBuffer(InputBufferSize),
		output:     protocol.NewScratchOutput(),
	}
	l.transport = protocol.NewTransport(l.output, l.handleRequest)
	l.transport.SetResetCallback(func() {
		DebugPrintln("[LOOP] host sequence reset")
	})
	return l
}

// handleRequest is the transport callback: one descriptor in, reply out
func (l *Loop) handleRequest(payload []byte, reply []byte) []byte {
	return l.dispatcher.DispatchRaw(payload, reply)
}

// Feed queues received bytes and returns how many were accepted.
// Bytes that do not fit are dropped and counted.
func (l *Loop) Feed(data []byte) int {
	n := l.input.Write(data)
	if n < len(data) {
		l.dropped += uint32(len(data) - n)
	}
	return n
}

// Poll runs one loop iteration at system time now
func (l *Loop) Poll(now uint32) {
	if l.input.Available() > 0 {
		data := l.input.Data()
		originalLen := len(data)
		in := protocol.NewSliceInputBuffer(data)

		l.transport.Receive(in)

		if consumed := originalLen - in.Available(); consumed > 0 {
			l.input.Pop(consumed)
		}
	}

	var elapsed uint32
	if l.started {
		elapsed = TicksSince(l.lastPoll, now)
	}
	l.lastPoll = now
	l.started = true

	l.motor.Tick(elapsed)
}

// Output returns the frames queued for the host. The slice is valid until
// the next Poll or ResetOutput.
func (l *Loop) Output() []byte {
	return l.output.Result()
}

// ResetOutput discards queued output after it has been written
func (l *Loop) ResetOutput() {
	l.output.Reset()
}

// Reset clears both buffers and the transport sequence, e.g. after the host
// reconnects
func (l *Loop) Reset() {
	l.input.Reset()
	l.output.Reset()
	l.transport.Reset()
}

// Dropped returns the number of received bytes lost to a full FIFO
func (l *Loop) Dropped() uint32 {
	return l.dropped
}

// Motor returns the motor driven by the loop
func (l *Loop) Motor() *Motor {
	return l.motor
}

// Dispatcher returns the command dispatcher
func (l *Loop) Dispatcher() *Dispatcher {
	return l.dispatcher
}

// Transport returns the device transport
func (l *Loop) Transport() *protocol.Transport {
	return l.transport
}
