// Package sim runs the coilstep control loop on the host, against a
// recording phase driver, so the client and HTTP bridge can be used
// without hardware.
package sim

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"coilstep/core"
	"coilstep/protocol"
)

// DefaultInterval is the simulated loop period
const DefaultInterval = time.Millisecond

// ErrNotRunning is returned by Snapshot when Serve is not active
var ErrNotRunning = errors.New("simulator not running")

// Snapshot is the observable simulator state
type Snapshot struct {
	Motor     core.MotorSnapshot
	Lines     [core.PhaseCount]bool
	Clock     uint32
	Transport protocol.TransportStats
	Events    []core.Event
}

// Option configures a Simulator
type Option func(*Simulator)

// WithClock replaces the wall clock, e.g. with clock.NewMock() in tests
func WithClock(clk clock.Clock) Option {
	return func(s *Simulator) { s.clock = clk }
}

// WithInterval sets the loop period
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Simulator owns a core.Loop. All loop access happens on the Serve
// goroutine; other goroutines reach it through channels.
type Simulator struct {
	logger   *zap.SugaredLogger
	clock    clock.Clock
	interval time.Duration

	phases *PhaseRecorder
	motor  *core.Motor
	loop   *core.Loop

	now uint32

	snapReq chan chan Snapshot

	mu      sync.Mutex
	running bool
}

// New creates a simulator with a fresh motor in its power-on state
func New(logger *zap.SugaredLogger, opts ...Option) *Simulator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Simulator{
		logger:   logger,
		clock:    clock.New(),
		interval: DefaultInterval,
		phases:   &PhaseRecorder{},
		snapReq:  make(chan chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.motor = core.NewMotor(s.phases)
	s.loop = core.NewLoop(s.motor)
	return s
}

// Phases returns the recording phase driver
func (s *Simulator) Phases() *PhaseRecorder {
	return s.phases
}

// Serve runs the loop against conn until ctx is done or conn fails.
// conn is closed on return.
func (s *Simulator) Serve(ctx context.Context, conn io.ReadWriteCloser) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("simulator already serving")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, conn, chunks, readErr)
	defer conn.Close()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	lastWall := s.clock.Now()
	s.logger.Infow("simulator started", "interval", s.interval)

	// A new connection starts with a clean link; motor state is kept
	s.loop.Reset()

	// Establish the loop time base
	s.loop.Poll(s.now)

	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("simulator stopped", "reason", ctx.Err())
			return nil

		case err := <-readErr:
			return s.hostGone(err)

		case chunk := <-chunks:
			if n := s.loop.Feed(chunk); n < len(chunk) {
				s.logger.Warnw("input overflow", "dropped", len(chunk)-n)
			}
			s.loop.Poll(s.now)
			if err := s.flush(conn); err != nil {
				return s.hostGone(err)
			}

		case <-ticker.C:
			// Ticks can be dropped under load, so measure the real gap
			wall := s.clock.Now()
			s.now += core.TimerFromDuration(wall.Sub(lastWall))
			lastWall = wall
			s.loop.Poll(s.now)
			if err := s.flush(conn); err != nil {
				return s.hostGone(err)
			}

		case reply := <-s.snapReq:
			reply <- s.snapshot()
		}
	}
}

// Snapshot asks the Serve goroutine for the current state
func (s *Simulator) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return Snapshot{}, ErrNotRunning
	}

	reply := make(chan Snapshot, 1)
	select {
	case s.snapReq <- reply:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (s *Simulator) snapshot() Snapshot {
	return Snapshot{
		Motor:     s.motor.Snapshot(),
		Lines:     s.phases.Lines(),
		Clock:     s.now,
		Transport: s.loop.Transport().Stats(),
		Events:    s.motor.Events().Events(),
	}
}

// hostGone maps a closed connection to a clean return
func (s *Simulator) hostGone(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		s.logger.Infow("host disconnected")
		return nil
	}
	return err
}

func (s *Simulator) flush(conn io.Writer) error {
	out := s.loop.Output()
	if len(out) == 0 {
		return nil
	}
	_, err := conn.Write(out)
	s.loop.ResetOutput()
	return err
}

func (s *Simulator) readLoop(ctx context.Context, conn io.Reader, chunks chan<- []byte, readErr chan<- error) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case readErr <- err:
			case <-ctx.Done():
			}
			return
		}
	}
}

// BridgeDebug routes core debug output to logger and enables it
func BridgeDebug(logger *zap.SugaredLogger) {
	core.SetDebugWriter(func(msg string) {
		logger.Debug(strings.TrimRight(msg, "\n"))
	})
	core.SetDebugEnabled(true)
}
