// Package device is the host-side client for the coilstep firmware: one
// typed call per command, carried over protocol.HostTransport.
package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"coilstep/core"
	"coilstep/host/serial"
	"coilstep/protocol"
)

var (
	// ErrNotConnected is returned by calls made before Connect or Attach
	ErrNotConnected = errors.New("not connected to device")
	// ErrMalformedReply is returned when a reply does not have the expected shape
	ErrMalformedReply = errors.New("malformed reply")
)

// Client represents a connection to a coilstep device
type Client struct {
	mu sync.Mutex

	transport *protocol.HostTransport
	port      io.ReadWriteCloser
	timeout   time.Duration

	connected bool
}

// NewClient creates a new Client instance (not yet connected)
func NewClient() *Client {
	return &Client{
		timeout: protocol.DefaultTimeout,
	}
}

// Connect connects to a device via serial port
func (c *Client) Connect(device string) error {
	return c.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects with a custom serial config
func (c *Client) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	// Drop anything the device queued before we arrived
	if err := port.Flush(); err != nil {
		port.Close()
		return fmt.Errorf("failed to flush serial port: %w", err)
	}

	c.Attach(port)
	return nil
}

// Attach uses an already open connection, e.g. one end of a net.Pipe
// served by the simulator
func (c *Client) Attach(port io.ReadWriteCloser) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.port = port
	c.transport = protocol.NewHostTransport(port)
	c.connected = true
}

// SetTimeout sets the per-request reply timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Close closes the connection to the device
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send issues one command with the given parameter and returns the raw
// reply payload
func (c *Client) Send(cmd core.Command, value uint16) ([]byte, error) {
	return c.SendCode(uint8(cmd), value)
}

// SendCode issues a request with an arbitrary code. The firmware ignores
// codes it does not know and replies with an empty payload.
func (c *Client) SendCode(code uint8, value uint16) ([]byte, error) {
	c.mu.Lock()
	transport, timeout := c.transport, c.timeout
	c.mu.Unlock()

	if transport == nil {
		return nil, ErrNotConnected
	}

	reply, err := transport.RequestWithTimeout(protocol.NewRequest(code, value), timeout)
	if err != nil {
		return nil, fmt.Errorf("request %d: %w", code, err)
	}
	return reply, nil
}

func (c *Client) command(cmd core.Command) error {
	_, err := c.Send(cmd, 0)
	return err
}

// Stop de-energizes all coils
func (c *Client) Stop() error { return c.command(core.CmdStop) }

// Init returns the motor to holding
func (c *Client) Init() error { return c.command(core.CmdInit) }

// StepForward moves one step forward
func (c *Client) StepForward() error { return c.command(core.CmdStepForward) }

// StepBackward moves one step backward
func (c *Client) StepBackward() error { return c.command(core.CmdStepBackward) }

// RotateForward moves one revolution forward
func (c *Client) RotateForward() error { return c.command(core.CmdRotateForward) }

// RotateBackward moves one revolution backward
func (c *Client) RotateBackward() error { return c.command(core.CmdRotateBackward) }

// SpeedUp increases the speed modifier by one
func (c *Client) SpeedUp() error { return c.command(core.CmdSpeedUp) }

// SpeedDown decreases the speed modifier by one
func (c *Client) SpeedDown() error { return c.command(core.CmdSpeedDown) }

// StepsParam sends value and returns the 5-digit echo
func (c *Client) StepsParam(value uint16) (string, error) {
	reply, err := c.Send(core.CmdStepsParam, value)
	if err != nil {
		return "", err
	}
	if len(reply) != 5 || !allDigits(reply) {
		return "", fmt.Errorf("%w: steps_param %q", ErrMalformedReply, reply)
	}
	return string(reply), nil
}

// Info returns the device message without its trailing NUL
func (c *Client) Info() (string, error) {
	reply, err := c.Send(core.CmdDataOut, 0)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(reply, 0); i >= 0 {
		reply = reply[:i]
	}
	return string(reply), nil
}

// Speed returns the current speed modifier
func (c *Client) Speed() (uint8, error) {
	reply, err := c.Send(core.CmdSpeedQuery, 0)
	if err != nil {
		return 0, err
	}
	if len(reply) != 3 || !allDigits(reply) {
		return 0, fmt.Errorf("%w: speed %q", ErrMalformedReply, reply)
	}
	v, err := strconv.ParseUint(string(reply), 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: speed %q", ErrMalformedReply, reply)
	}
	return uint8(v), nil
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
