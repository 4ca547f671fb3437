package core

import (
	"sort"
	"sync"

	"coilstep/protocol"
)

// Command identifies a request. Values are the request codes on the wire.
type Command uint8

const (
	CmdStop           Command = 0
	CmdInit           Command = 1
	CmdStepForward    Command = 3
	CmdStepBackward   Command = 4
	CmdRotateForward  Command = 5
	CmdRotateBackward Command = 6
	CmdStepsParam     Command = 50
	CmdSpeedUp        Command = 100
	CmdSpeedDown      Command = 101
	CmdDataOut        Command = 200
	CmdSpeedQuery     Command = 201
)

// AllCommands lists every known command ordered by code
var AllCommands = [...]Command{
	CmdStop, CmdInit, CmdStepForward, CmdStepBackward,
	CmdRotateForward, CmdRotateBackward, CmdStepsParam,
	CmdSpeedUp, CmdSpeedDown, CmdDataOut, CmdSpeedQuery,
}

// ParseCommand decodes a request code. Unknown codes report false.
func ParseCommand(code uint8) (Command, bool) {
	for _, c := range AllCommands {
		if uint8(c) == code {
			return c, true
		}
	}
	return 0, false
}

// CommandByName returns the command whose String form is name
func CommandByName(name string) (Command, bool) {
	for _, c := range AllCommands {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// String returns the command name
func (c Command) String() string {
	switch c {
	case CmdStop:
		return "stop"
	case CmdInit:
		return "init"
	case CmdStepForward:
		return "step_forward"
	case CmdStepBackward:
		return "step_backward"
	case CmdRotateForward:
		return "rotate_forward"
	case CmdRotateBackward:
		return "rotate_backward"
	case CmdStepsParam:
		return "steps_param"
	case CmdSpeedUp:
		return "speed_up"
	case CmdSpeedDown:
		return "speed_down"
	case CmdDataOut:
		return "data_out"
	case CmdSpeedQuery:
		return "speed_query"
	default:
		return "command(" + itoa(int(c)) + ")"
	}
}

// CommandHandler applies a command to the motor and appends its reply
// payload, if any, to reply. It returns the extended slice.
type CommandHandler func(m *Motor, req protocol.Request, reply []byte) []byte

// CommandEntry is one row of the command table
type CommandEntry struct {
	Cmd     Command
	Help    string
	Handler CommandHandler
}

// Dispatcher maps decoded requests onto the motor. Replies are appended to
// caller-owned buffers, so nothing returned by Dispatch outlives the call
// unless the caller keeps it.
type Dispatcher struct {
	mu      sync.RWMutex
	motor   *Motor
	entries map[Command]*CommandEntry
}

// NewDispatcher creates a dispatcher for m with the standard command table
func NewDispatcher(m *Motor) *Dispatcher {
	d := &Dispatcher{
		motor:   m,
		entries: make(map[Command]*CommandEntry),
	}
	registerMotorCommands(d)
	return d
}

// Register adds or replaces a command handler
func (d *Dispatcher) Register(cmd Command, help string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[cmd] = &CommandEntry{Cmd: cmd, Help: help, Handler: handler}
}

// Lookup retrieves a command entry
func (d *Dispatcher) Lookup(cmd Command) (*CommandEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.entries[cmd]
	return entry, ok
}

// Count returns the number of registered commands
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Commands returns the command table ordered by code
func (d *Dispatcher) Commands() []CommandEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]CommandEntry, 0, len(d.entries))
	for _, entry := range d.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmd < out[j].Cmd })
	return out
}

// Motor returns the motor the dispatcher drives
func (d *Dispatcher) Motor() *Motor {
	return d.motor
}

// Dispatch applies req and appends the reply payload to reply.
// Unknown codes are a no-op and leave reply unchanged.
func (d *Dispatcher) Dispatch(req protocol.Request, reply []byte) []byte {
	cmd, ok := ParseCommand(req.Code)
	if !ok {
		return reply
	}
	entry, ok := d.Lookup(cmd)
	if !ok || entry.Handler == nil {
		return reply
	}

	d.motor.record(EvtCommand, uint32(cmd))
	return entry.Handler(d.motor, req, reply)
}

// DispatchRaw decodes an 8-byte descriptor and dispatches it.
// Malformed descriptors are treated like unknown commands.
func (d *Dispatcher) DispatchRaw(data []byte, reply []byte) []byte {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		DebugPrintln("[CMD] dropped request: " + err.Error())
		return reply
	}
	return d.Dispatch(req, reply)
}
