package sim

import (
	"sync"

	"coilstep/core"
)

// PhaseRecorder is a PhaseDriver that keeps the four line levels in memory
type PhaseRecorder struct {
	mu     sync.Mutex
	lines  [core.PhaseCount]bool
	writes uint32
}

// SetPhase records one line level
func (p *PhaseRecorder) SetPhase(phase uint8, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lines[phase%core.PhaseCount] = on
	p.writes++
	return nil
}

// AllOff drops all four lines
func (p *PhaseRecorder) AllOff() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lines = [core.PhaseCount]bool{}
	p.writes++
	return nil
}

// Lines returns the current line levels, index = phase
func (p *PhaseRecorder) Lines() [core.PhaseCount]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Writes returns the number of driver calls seen
func (p *PhaseRecorder) Writes() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}
