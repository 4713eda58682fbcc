package loadbalance

import (
	"slices"
	"sync"

	"github.com/kbukum/meshflow/errors"
)

// State is the position of a logical pipeline execution in its pass loop.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateFetching
	StateTransforming
	StateDelivered
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateFetching:
		return "fetching"
	case StateTransforming:
		return "transforming"
	case StateDelivered:
		return "delivered"
	default:
		return "unknown"
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRequesting
	case StateRequesting:
		return to == StateFetching
	case StateFetching:
		return to == StateTransforming
	case StateTransforming:
		return to == StateDelivered
	case StateDelivered:
		return to == StateIdle || to == StateRequesting
	default:
		return false
	}
}

// Machine tracks the state of one pipeline index. Abort returns it to idle
// from anywhere, which is how a failed or cancelled pass ends.
type Machine struct {
	mu      sync.Mutex
	index   int
	state   State
	history []State
}

// NewMachine creates an idle machine for a pipeline index.
func NewMachine(index int) *Machine {
	return &Machine{index: index, history: []State{StateIdle}}
}

// Index returns the pipeline index.
func (m *Machine) Index() int { return m.index }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the next state if the move is legal.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isAllowedTransition(m.state, to) {
		return errors.InvalidState(m.state.String(), to.String()).WithDetail("pipeline_index", m.index)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

// Abort returns the machine to idle.
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		m.state = StateIdle
		m.history = append(m.history, StateIdle)
	}
}

// History returns every state visited, starting with idle.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}
