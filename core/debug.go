package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Motor event type codes
const (
	EvtCommand  = 1 // command dispatched
	EvtStep     = 2 // phase transition executed
	EvtStop     = 3 // coils de-energized
	EvtHold     = 4 // holding energization applied
	EvtReversal = 5 // reversal correction applied
	EvtFault    = 6 // phase driver returned an error
)

// EventRingSize is the number of motor events kept for post-mortem dumps
const EventRingSize = 32

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether DebugPrintln output is active
	debugEnabled bool
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, a logger, etc.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled {
		debugPrintln(msg)
	}
}

// Event captures one motor event
type Event struct {
	Type    uint8
	State   MotorState
	Clock   uint32 // motor clock (total ticked time) when recorded
	Current uint8  // phase position after the event
	Last    uint8
	Value   uint32 // event dependent: command code, steps left, ...
}

// EventRing keeps the most recent motor events. Recording never allocates.
type EventRing struct {
	events [EventRingSize]Event
	head   uint8
	count  uint8
}

// Record stores an event, overwriting the oldest when full
func (r *EventRing) Record(evt Event) {
	r.events[r.head] = evt
	r.head = (r.head + 1) % EventRingSize
	if r.count < EventRingSize {
		r.count++
	}
}

// Len returns the number of events stored
func (r *EventRing) Len() int {
	return int(r.count)
}

// Events returns the stored events, oldest first
func (r *EventRing) Events() []Event {
	out := make([]Event, 0, r.count)
	start := (r.head + EventRingSize - r.count) % EventRingSize
	for i := uint8(0); i < r.count; i++ {
		out = append(out, r.events[(start+i)%EventRingSize])
	}
	return out
}

// Clear drops all events
func (r *EventRing) Clear() {
	*r = EventRing{}
}

// Dump writes every stored event through the debug writer, ignoring the
// enabled flag (dumps are requested explicitly)
func (r *EventRing) Dump() {
	debugPrintln("[MOTOR] === Event Dump ===")
	for _, evt := range r.Events() {
		debugPrintln("[MOTOR] " + EventName(evt.Type) +
			" state=" + evt.State.String() +
			" clock=" + utoa(evt.Clock) +
			" cur=" + itoa(int(evt.Current)) +
			" last=" + itoa(int(evt.Last)) +
			" v=" + utoa(evt.Value))
	}
	debugPrintln("[MOTOR] === End Dump ===")
}

// EventName returns a short label for an event type
func EventName(t uint8) string {
	switch t {
	case EvtCommand:
		return "COMMAND"
	case EvtStep:
		return "STEP"
	case EvtStop:
		return "STOP"
	case EvtHold:
		return "HOLD"
	case EvtReversal:
		return "REVERSAL"
	case EvtFault:
		return "FAULT!"
	default:
		return "UNKNOWN"
	}
}
