package sequencer

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a run.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrIllegalTransition is returned when the machine is driven out of order.
var ErrIllegalTransition = errors.New("illegal state transition")

// Machine tracks a run: NotStarted -> Running(i) -> Succeeded | Failed(i).
// Running advances one step at a time and never revisits an index.
type Machine struct {
	state State
	index int
	total int
}

// NewMachine creates a machine for a run of total steps.
func NewMachine(total int) *Machine {
	return &Machine{state: StateNotStarted, total: total}
}

// Start enters Running(0), or Succeeded directly when there are no steps.
func (m *Machine) Start() error {
	if m.state != StateNotStarted {
		return fmt.Errorf("%w: start from %s", ErrIllegalTransition, m.state)
	}
	if m.total == 0 {
		m.state = StateSucceeded
		return nil
	}
	m.state = StateRunning
	m.index = 0
	return nil
}

// Advance records success of the current step and moves to the next one,
// or to Succeeded after the last.
func (m *Machine) Advance() error {
	if m.state != StateRunning {
		return fmt.Errorf("%w: advance from %s", ErrIllegalTransition, m.state)
	}
	m.index++
	if m.index == m.total {
		m.state = StateSucceeded
	}
	return nil
}

// Fail records failure of the current step. Failed is terminal.
func (m *Machine) Fail() error {
	if m.state != StateRunning {
		return fmt.Errorf("%w: fail from %s", ErrIllegalTransition, m.state)
	}
	m.state = StateFailed
	return nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Index returns the step being run, or the failed step once Failed.
func (m *Machine) Index() int { return m.index }

// Done reports whether the machine reached a terminal state.
func (m *Machine) Done() bool {
	return m.state == StateSucceeded || m.state == StateFailed
}
