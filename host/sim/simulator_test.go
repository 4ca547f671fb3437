package sim

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"coilstep/core"
	"coilstep/protocol"
)

const testInterval = 5 * time.Millisecond

type harness struct {
	sim    *Simulator
	mock   *clock.Mock
	host   *protocol.HostTransport
	cancel context.CancelFunc
	done   chan error
}

func startSim(t *testing.T) *harness {
	t.Helper()
	mock := clock.NewMock()
	s := New(zaptest.NewLogger(t).Sugar(), WithClock(mock), WithInterval(testInterval))

	hostEnd, simEnd := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, simEnd) }()

	h := &harness{sim: s, mock: mock, host: protocol.NewHostTransport(hostEnd), cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		h.host.Close()
		<-done
	})

	waitRunning(t, s)
	return h
}

func waitRunning(t *testing.T, s *Simulator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.Snapshot(context.Background()); err == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("simulator did not start")
}

func (h *harness) send(t *testing.T, cmd core.Command, value uint16) []byte {
	t.Helper()
	reply, err := h.host.RequestWithTimeout(protocol.NewRequest(uint8(cmd), value), time.Second)
	if err != nil {
		t.Fatalf("%s failed: %v", cmd, err)
	}
	return reply
}

// advanceUntil moves the mock clock one interval at a time until cond holds
func (h *harness) advanceUntil(t *testing.T, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	for i := 0; i < 20000; i++ {
		snap, err := h.sim.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if cond(snap) {
			return snap
		}
		h.mock.Add(testInterval)
	}
	t.Fatal("condition not reached")
	return Snapshot{}
}

func TestSimulatorReplies(t *testing.T) {
	h := startSim(t)

	if got := string(h.send(t, core.CmdSpeedQuery, 0)); got != "020" {
		t.Errorf("Expected \"020\", got %q", got)
	}
	if got := string(h.send(t, core.CmdStepsParam, 10)); got != "00010" {
		t.Errorf("Expected \"00010\", got %q", got)
	}
	if got := h.send(t, 77, 0); len(got) != 0 {
		t.Errorf("Expected empty reply for an unknown code, got %q", got)
	}
}

func TestSimulatorHoldingAtBoot(t *testing.T) {
	h := startSim(t)

	snap := h.advanceUntil(t, func(s Snapshot) bool { return s.Motor.Initialized })

	want := [core.PhaseCount]bool{false, true, true, false}
	if snap.Lines != want {
		t.Errorf("Expected holding lines %v, got %v", want, snap.Lines)
	}
}

func TestSimulatorRotation(t *testing.T) {
	h := startSim(t)
	h.send(t, core.CmdInit, 0)
	h.send(t, core.CmdRotateForward, 0)

	snap := h.advanceUntil(t, func(s Snapshot) bool {
		return s.Motor.State == core.StateIdle && s.Motor.Steps == 0
	})

	if snap.Motor.Current != 2 {
		t.Errorf("Expected current=2 after a revolution, got %d", snap.Motor.Current)
	}
	if !snap.Lines[2] || snap.Lines[1] {
		t.Errorf("Expected line 2 high and line 1 low, got %v", snap.Lines)
	}
	if snap.Transport.Frames != 2 {
		t.Errorf("Expected 2 frames handled, got %d", snap.Transport.Frames)
	}
	if snap.Clock == 0 {
		t.Error("Expected the virtual clock to advance")
	}
}

func TestSimulatorStop(t *testing.T) {
	h := startSim(t)
	h.advanceUntil(t, func(s Snapshot) bool { return s.Motor.Initialized })

	h.send(t, core.CmdStop, 0)
	snap := h.advanceUntil(t, func(s Snapshot) bool {
		return s.Lines == [core.PhaseCount]bool{}
	})

	if snap.Motor.State != core.StateStopped || snap.Motor.Steps != 0 {
		t.Errorf("Expected stopped with no steps, got %s/%d", snap.Motor.State, snap.Motor.Steps)
	}
}

func TestSimulatorHostDisconnect(t *testing.T) {
	mock := clock.NewMock()
	s := New(nil, WithClock(mock))
	hostEnd, simEnd := net.Pipe()

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background(), simEnd) }()
	waitRunning(t, s)

	hostEnd.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean exit on disconnect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after disconnect")
	}

	if _, err := s.Snapshot(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning, got %v", err)
	}
}

func TestPhaseRecorder(t *testing.T) {
	p := &PhaseRecorder{}
	p.SetPhase(1, true)
	p.SetPhase(6, true)

	if p.Lines() != [core.PhaseCount]bool{false, true, true, false} {
		t.Errorf("Unexpected lines %v", p.Lines())
	}
	p.AllOff()
	if p.Lines() != ([core.PhaseCount]bool{}) {
		t.Errorf("Expected all lines low, got %v", p.Lines())
	}
	if p.Writes() != 3 {
		t.Errorf("Expected 3 writes, got %d", p.Writes())
	}
}
