// Package engine implements the per-job render lifecycle state machine.
//
// A job moves through a fixed forward chain of states and ends in exactly
// one terminal state. The machine guards against late mutation: once a
// terminal state commits, further transitions, progress emission, and
// metric writes are all rejected so a finalized job can never be altered
// by straggling encoder output.
package engine

import (
	"errors"
	"fmt"
	"sync"
)

// State is a named stage in the render job lifecycle.
type State string

const (
	StateInit       State = "INIT"
	StateWarmingUp  State = "WARMING_UP"
	StateStarting   State = "STARTING"
	StateEncoding   State = "ENCODING"
	StateFinalizing State = "FINALIZING"
	StateDone       State = "DONE"
	StateCancelled  State = "CANCELLED"
	StateError      State = "ERROR"
)

// Terminal reports whether s is one of the three terminal states.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateCancelled, StateError:
		return true
	}
	return false
}

var (
	// ErrInvalidTransition indicates the requested target is not a legal
	// successor of the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTerminalCommitted indicates a transition was requested after a
	// terminal state already committed.
	ErrTerminalCommitted = errors.New("terminal state already committed")
	// ErrProgressAfterTerminal indicates a progress emission was attempted
	// after a terminal state committed.
	ErrProgressAfterTerminal = errors.New("progress after terminal state")
	// ErrMetricsAfterTerminal indicates a metric mutation was attempted
	// after a terminal state committed.
	ErrMetricsAfterTerminal = errors.New("metrics mutation after terminal state")
)

// successors maps each non-terminal state to its legal targets. Every
// mid-flight state may also fail over to CANCELLED or ERROR.
var successors = map[State][]State{
	StateInit:       {StateWarmingUp},
	StateWarmingUp:  {StateStarting, StateCancelled, StateError},
	StateStarting:   {StateEncoding, StateCancelled, StateError},
	StateEncoding:   {StateFinalizing, StateCancelled, StateError},
	StateFinalizing: {StateDone, StateCancelled, StateError},
}

// TransitionObserver receives every committed transition, in commit order,
// synchronously and strictly after the state update. Observers therefore
// never see a torn state.
type TransitionObserver func(from, to State)

// FSM is the lifecycle state machine for a single render job.
// The zero value is not usable; construct with New.
type FSM struct {
	mu       sync.Mutex
	state    State
	observer TransitionObserver
}

// New returns a machine in the INIT state.
func New() *FSM {
	return &FSM{state: StateInit}
}

// SetObserver installs the transition observer. Must be called before the
// first transition; a nil observer disables notification.
func (m *FSM) SetObserver(fn TransitionObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// State returns the current state.
func (m *FSM) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsTerminal reports whether a terminal state has committed.
func (m *FSM) IsTerminal() bool {
	return m.State().Terminal()
}

// Transition moves the machine to target if target is a legal successor of
// the current state. After a terminal state commits every further call
// fails with ErrTerminalCommitted, so terminality is reached at most once.
func (m *FSM) Transition(target State) error {
	m.mu.Lock()
	from := m.state
	if from.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is final, cannot move to %s", ErrTerminalCommitted, from, target)
	}
	if !legalSuccessor(from, target) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, target)
	}
	m.state = target
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(from, target)
	}
	return nil
}

// AssertCanEmitProgress fails once a terminal state has committed, so
// late-arriving encoder output cannot reach an already-finalized job.
func (m *FSM) AssertCanEmitProgress() error {
	if s := m.State(); s.Terminal() {
		return fmt.Errorf("%w: state %s", ErrProgressAfterTerminal, s)
	}
	return nil
}

// AssertCanMutateMetrics fails once a terminal state has committed. The
// field path identifies the metric being written for the error message.
func (m *FSM) AssertCanMutateMetrics(fieldPath string) error {
	if s := m.State(); s.Terminal() {
		return fmt.Errorf("%w: field %q in state %s", ErrMetricsAfterTerminal, fieldPath, s)
	}
	return nil
}

func legalSuccessor(from, to State) bool {
	for _, candidate := range successors[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
