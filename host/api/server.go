// Package api exposes a coilstep device over HTTP
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"coilstep/core"
	"coilstep/host/sim"
)

// Device is the subset of device.Client the bridge uses
type Device interface {
	Send(cmd core.Command, value uint16) ([]byte, error)
	Speed() (uint8, error)
	Info() (string, error)
	StepsParam(value uint16) (string, error)
}

// StatusSource reports simulator state
type StatusSource interface {
	Snapshot(ctx context.Context) (sim.Snapshot, error)
}

// errNoStatus is returned by /status when no simulator is attached
var errNoStatus = errors.New("status is only available with the simulator")

// Server is the HTTP bridge
type Server struct {
	device Device
	status StatusSource
	logger *zap.SugaredLogger
	router chi.Router

	mu      sync.Mutex
	closers []io.Closer
}

// Option configures a Server
type Option func(*Server)

// WithStatus attaches a simulator for /status
func WithStatus(src StatusSource) Option {
	return func(s *Server) { s.status = src }
}

// NewServer builds the router for dev
func NewServer(dev Device, logger *zap.SugaredLogger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{device: dev, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/commands", s.listCommands)
	r.Route("/motor", func(r chi.Router) {
		r.Get("/speed", s.getSpeed)
		r.Post("/{command}", s.postCommand)
	})
	r.Get("/info", s.getInfo)
	r.Get("/steps/{value}", s.getSteps)
	r.Get("/status", s.getStatus)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, ErrNotFound)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddCloser registers a resource released by Close
func (s *Server) AddCloser(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, c)
}

// Close releases every registered resource, newest first
func (s *Server) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i].Close())
	}
	return err
}

// ListenAndServe serves on addr until ctx is done, then shuts down and
// closes registered resources
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("http bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
	}

	return multierr.Append(err, s.Close())
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// CommandInfo describes one command for /commands
type CommandInfo struct {
	Code uint8  `json:"code"`
	Name string `json:"name"`
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	out := make([]CommandInfo, 0, len(core.AllCommands))
	for _, c := range core.AllCommands {
		out = append(out, CommandInfo{Code: uint8(c), Name: c.String()})
	}
	render.JSON(w, r, out)
}

// CommandResponse is the result of POST /motor/{command}
type CommandResponse struct {
	Command string `json:"command"`
	Code    uint8  `json:"code"`
	Reply   string `json:"reply"`
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "command")
	cmd, ok := core.CommandByName(name)
	if !ok {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("unknown command %q", name)))
		return
	}

	var value uint16
	if raw := r.URL.Query().Get("value"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("value: %w", err)))
			return
		}
		value = uint16(v)
	}

	reply, err := s.device.Send(cmd, value)
	if err != nil {
		s.logger.Warnw("command failed", "command", name, "error", err)
		render.Render(w, r, ErrDevice(err))
		return
	}

	render.JSON(w, r, CommandResponse{Command: cmd.String(), Code: uint8(cmd), Reply: string(reply)})
}

func (s *Server) getSpeed(w http.ResponseWriter, r *http.Request) {
	speed, err := s.device.Speed()
	if err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	render.JSON(w, r, map[string]uint8{"speed": speed})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	msg, err := s.device.Info()
	if err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	render.JSON(w, r, map[string]string{"message": msg})
}

func (s *Server) getSteps(w http.ResponseWriter, r *http.Request) {
	v, err := strconv.ParseUint(chi.URLParam(r, "value"), 10, 16)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("value: %w", err)))
		return
	}
	digits, err := s.device.StepsParam(uint16(v))
	if err != nil {
		render.Render(w, r, ErrDevice(err))
		return
	}
	render.JSON(w, r, map[string]string{"digits": digits})
}

// StatusResponse is the JSON form of a simulator snapshot
type StatusResponse struct {
	State       string `json:"state"`
	Current     uint8  `json:"current"`
	Last        uint8  `json:"last"`
	Steps       uint16 `json:"steps"`
	Speed       uint8  `json:"speed"`
	Initialized bool   `json:"initialized"`
	Lines       []bool `json:"lines"`
	Clock       uint32 `json:"clock"`
	Frames      uint32 `json:"frames"`
	Naks        uint32 `json:"naks"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		render.Render(w, r, ErrUnavailable(errNoStatus))
		return
	}
	snap, err := s.status.Snapshot(r.Context())
	if err != nil {
		render.Render(w, r, ErrUnavailable(err))
		return
	}

	render.JSON(w, r, StatusResponse{
		State:       snap.Motor.State.String(),
		Current:     snap.Motor.Current,
		Last:        snap.Motor.Last,
		Steps:       snap.Motor.Steps,
		Speed:       snap.Motor.Speed,
		Initialized: snap.Motor.Initialized,
		Lines:       snap.Lines[:],
		Clock:       snap.Clock,
		Frames:      snap.Transport.Frames,
		Naks:        snap.Transport.Naks,
	})
}
