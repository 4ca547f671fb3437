package core

// Four-phase stepper control.
// Open-loop, fixed speed: one phase transition at most per qualifying tick.

// MotorState is the stepping mode of the motor
type MotorState uint8

// Motor states. The values match the request codes that select them.
const (
	StateStopped  MotorState = 0
	StateIdle     MotorState = 1
	StateForward  MotorState = 3
	StateBackward MotorState = 4
)

// String returns the state name
func (s MotorState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateIdle:
		return "idle"
	case StateForward:
		return "forward"
	case StateBackward:
		return "backward"
	default:
		return "state(" + itoa(int(s)) + ")"
	}
}

const (
	DefaultSpeed  = 20  // initial SpeedModifier
	MinSpeed      = 1   // slowest: one step per BaseInterval
	MaxSpeed      = 150 // fastest
	RotationSteps = 48  // steps per full revolution

	initialCurrent = 2
	initialLast    = 0
)

// Motor owns all motor state: phase positions, step counter, speed and the
// elapsed-time accumulator. The dispatcher mutates it on command receipt and
// the control loop advances it with Tick. It is not safe for concurrent use;
// both callers must run on the same goroutine.
type Motor struct {
	driver PhaseDriver

	state    MotorState
	recorded MotorState // state seen by the last reversal check

	current uint8 // energized phase, 0..3
	last    uint8 // previously energized phase, 0..3
	span    int8  // current-last before modulo reduction; its sign is the heading

	steps       uint16
	speed       uint8
	initialized bool
	accum       uint32
	clock       uint32 // ticked time, wraps

	err    error
	events EventRing
}

// MotorSnapshot is a copy of the motor state for telemetry and tests
type MotorSnapshot struct {
	State       MotorState
	Current     uint8
	Last        uint8
	Steps       uint16
	Speed       uint8
	Initialized bool
}

// NewMotor creates a motor in its power-on state: idle, current phase 2,
// last phase 0, speed 20, holding energization not yet applied.
func NewMotor(driver PhaseDriver) *Motor {
	return &Motor{
		driver:   driver,
		state:    StateIdle,
		recorded: StateIdle,
		current:  initialCurrent,
		last:     initialLast,
		span:     initialCurrent - initialLast,
		speed:    DefaultSpeed,
	}
}

// Tick advances the motor by the elapsed number of timer ticks.
// At most one phase transition is executed per call.
func (m *Motor) Tick(elapsed uint32) {
	m.clock += elapsed
	m.correctReversal()

	if m.accum > ^uint32(0)-elapsed {
		m.accum = ^uint32(0)
	} else {
		m.accum += elapsed
	}
	if m.accum <= StepThreshold(m.speed) {
		return
	}
	m.accum = 0

	switch m.state {
	case StateStopped:
		m.fault(m.driver.AllOff())
		m.steps = 0
		m.initialized = false
		m.record(EvtStop, 0)

	case StateIdle:
		if !m.initialized {
			m.hold()
			m.initialized = true
		}

	case StateForward:
		if m.steps == 0 {
			m.state = StateIdle
			return
		}
		m.steps--
		m.last = (m.current + PhaseCount - 1) % PhaseCount
		m.current = (m.current + 1) % PhaseCount
		m.span = 2
		m.advance()

	case StateBackward:
		if m.steps == 0 {
			m.state = StateIdle
			return
		}
		m.steps--
		m.last = (m.current + 1) % PhaseCount
		m.current = (m.current + PhaseCount - 1) % PhaseCount
		m.span = -2
		m.advance()
	}
}

// correctReversal realigns the current phase when the stepping direction
// changed since the last check. Without it the first step after a reversal
// re-energizes a line that is already on and the motor stalls for one step.
func (m *Motor) correctReversal() {
	if m.state == m.recorded {
		return
	}
	m.recorded = m.state

	switch {
	case m.span > 0 && m.state == StateBackward:
		m.current = (m.current + PhaseCount - 1) % PhaseCount
		m.span--
	case m.span < 0 && m.state == StateForward:
		m.current = (m.current + 1) % PhaseCount
		m.span++
	default:
		return
	}
	m.record(EvtReversal, uint32(m.steps))
}

// advance switches the coils for one step and finishes the move when the
// step counter is exhausted
func (m *Motor) advance() {
	m.fault(m.driver.SetPhase(m.last, false))
	m.fault(m.driver.SetPhase(m.current, true))
	m.record(EvtStep, uint32(m.steps))

	if m.steps == 0 {
		m.state = StateIdle
	}
}

// hold applies the idle holding energization: the phase after last and the
// current phase. Only exact after a forward move.
func (m *Motor) hold() {
	m.fault(m.driver.SetPhase((m.last+1)%PhaseCount, true))
	m.fault(m.driver.SetPhase(m.current, true))
	m.record(EvtHold, 0)
}

func (m *Motor) fault(err error) {
	if err == nil {
		return
	}
	m.err = err
	m.record(EvtFault, 0)
	DebugPrintln("[MOTOR] phase driver error: " + err.Error())
}

func (m *Motor) record(evtType uint8, value uint32) {
	m.events.Record(Event{
		Type:    evtType,
		State:   m.state,
		Clock:   m.clock,
		Current: m.current,
		Last:    m.last,
		Value:   value,
	})
}

// Stop requests de-energization on the next qualifying tick
func (m *Motor) Stop() {
	m.state = StateStopped
	m.initialized = false
}

// Init returns to idle and marks the coils as initialized
func (m *Motor) Init() {
	m.state = StateIdle
	m.initialized = true
}

// Move starts stepping in the given direction for a number of steps
func (m *Motor) Move(forward bool, steps uint16) {
	if forward {
		m.state = StateForward
	} else {
		m.state = StateBackward
	}
	m.steps = steps
}

// SpeedUp increments the speed modifier, clamping at MaxSpeed
func (m *Motor) SpeedUp() {
	if m.speed < MaxSpeed {
		m.speed++
	}
}

// SpeedDown decrements the speed modifier, clamping at MinSpeed
func (m *Motor) SpeedDown() {
	if m.speed > MinSpeed {
		m.speed--
	}
}

// SetSpeed sets the speed modifier, clamped to [MinSpeed, MaxSpeed]
func (m *Motor) SetSpeed(speed uint8) {
	switch {
	case speed < MinSpeed:
		speed = MinSpeed
	case speed > MaxSpeed:
		speed = MaxSpeed
	}
	m.speed = speed
}

// State returns the current motor state
func (m *Motor) State() MotorState {
	return m.state
}

// Speed returns the speed modifier
func (m *Motor) Speed() uint8 {
	return m.speed
}

// Steps returns the steps remaining in the current move
func (m *Motor) Steps() uint16 {
	return m.steps
}

// Positions returns the current and last phase positions
func (m *Motor) Positions() (current, last uint8) {
	return m.current, m.last
}

// Initialized reports whether holding energization has been applied
func (m *Motor) Initialized() bool {
	return m.initialized
}

// Err returns the most recent phase driver error, if any
func (m *Motor) Err() error {
	return m.err
}

// Events returns the motor event ring
func (m *Motor) Events() *EventRing {
	return &m.events
}

// Snapshot returns a copy of the observable motor state
func (m *Motor) Snapshot() MotorSnapshot {
	return MotorSnapshot{
		State:       m.state,
		Current:     m.current,
		Last:        m.last,
		Steps:       m.steps,
		Speed:       m.speed,
		Initialized: m.initialized,
	}
}
