package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"coilstep/core"
	"coilstep/host/config"
	"coilstep/host/device"
	"coilstep/host/sim"
)

const tcpPrefix = "tcp://"

// session is a connected client, optionally backed by an in-process simulator
type session struct {
	client *device.Client
	sim    *sim.Simulator

	cancel context.CancelFunc
	done   chan error
}

func openSession(cfg *config.Config, logger *zap.SugaredLogger) (*session, error) {
	s := &session{client: device.NewClient()}
	s.client.SetTimeout(cfg.RequestTimeout)

	switch {
	case cfg.Simulate:
		simLogger := logger.Named("sim")
		if cfg.Debug {
			sim.BridgeDebug(simLogger)
		}
		s.sim = sim.New(simLogger, sim.WithInterval(cfg.SimInterval))

		hostEnd, simEnd := net.Pipe()
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan error, 1)
		go func() { s.done <- s.sim.Serve(ctx, simEnd) }()

		s.client.Attach(hostEnd)
		logger.Infow("connected to simulator")

	case strings.HasPrefix(cfg.Serial.Device, tcpPrefix):
		addr := strings.TrimPrefix(cfg.Serial.Device, tcpPrefix)
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
		}
		s.client.Attach(conn)
		logger.Infow("connected", "addr", addr)

	default:
		if err := s.client.ConnectWithConfig(&cfg.Serial); err != nil {
			return nil, err
		}
		logger.Infow("connected", "device", cfg.Serial.Device, "baud", cfg.Serial.Baud)
	}

	return s, nil
}

// Close disconnects the client and stops the simulator, if any
func (s *session) Close() error {
	err := s.client.Close()
	if s.cancel != nil {
		s.cancel()
		err = multierr.Append(err, <-s.done)
	}
	return err
}

// runCommand issues a command by name and returns the printable reply
func runCommand(c *device.Client, name string, args []string) (string, error) {
	cmd, ok := core.CommandByName(name)
	if !ok {
		return "", fmt.Errorf("unknown command %q", name)
	}

	switch cmd {
	case core.CmdSpeedQuery:
		speed, err := c.Speed()
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(speed)), nil

	case core.CmdDataOut:
		return c.Info()

	case core.CmdStepsParam:
		if len(args) < 1 {
			return "", fmt.Errorf("usage: steps_param <0-65535>")
		}
		value, err := parseValue(args[0])
		if err != nil {
			return "", err
		}
		return c.StepsParam(value)
	}

	if _, err := c.Send(cmd, 0); err != nil {
		return "", err
	}
	return "ok", nil
}

// parseValue parses a 16-bit request parameter (decimal or 0x hex)
func parseValue(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint16(v), nil
}

// commandNames lists every command name for completion and help
func commandNames() []string {
	names := make([]string, 0, len(core.AllCommands))
	for _, c := range core.AllCommands {
		names = append(names, c.String())
	}
	return names
}
