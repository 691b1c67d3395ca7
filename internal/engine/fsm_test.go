package engine

import (
	"errors"
	"testing"
)

func TestHappyPathTransitions(t *testing.T) {
	m := New()
	chain := []State{StateWarmingUp, StateStarting, StateEncoding, StateFinalizing, StateDone}
	for _, target := range chain {
		if err := m.Transition(target); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
		if m.State() != target {
			t.Fatalf("state = %s, want %s", m.State(), target)
		}
	}
	if !m.IsTerminal() {
		t.Fatal("expected terminal after DONE")
	}
}

func TestIllegalSuccessorsRejected(t *testing.T) {
	cases := []struct {
		setup  []State
		target State
	}{
		{nil, StateStarting},
		{nil, StateEncoding},
		{nil, StateDone},
		{nil, StateCancelled},
		{nil, StateError},
		{[]State{StateWarmingUp}, StateEncoding},
		{[]State{StateWarmingUp, StateStarting}, StateDone},
		{[]State{StateWarmingUp, StateStarting, StateEncoding}, StateDone},
		{[]State{StateWarmingUp, StateStarting, StateEncoding}, StateWarmingUp},
		{[]State{StateWarmingUp, StateStarting, StateEncoding, StateFinalizing}, StateEncoding},
	}
	for _, tc := range cases {
		m := New()
		for _, s := range tc.setup {
			if err := m.Transition(s); err != nil {
				t.Fatalf("setup transition to %s: %v", s, err)
			}
		}
		err := m.Transition(tc.target)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%v -> %s: got %v, want ErrInvalidTransition", tc.setup, tc.target, err)
		}
	}
}

func TestMidFlightFailover(t *testing.T) {
	for _, terminal := range []State{StateCancelled, StateError} {
		for _, mid := range []State{StateWarmingUp, StateStarting, StateEncoding, StateFinalizing} {
			m := New()
			for _, s := range []State{StateWarmingUp, StateStarting, StateEncoding, StateFinalizing} {
				if s == mid {
					break
				}
				if err := m.Transition(s); err != nil {
					t.Fatal(err)
				}
			}
			if err := m.Transition(mid); err != nil {
				t.Fatal(err)
			}
			if err := m.Transition(terminal); err != nil {
				t.Fatalf("%s -> %s: %v", mid, terminal, err)
			}
		}
	}
}

func TestTerminalGuards(t *testing.T) {
	for _, terminal := range []State{StateDone, StateCancelled, StateError} {
		m := New()
		if err := m.Transition(StateWarmingUp); err != nil {
			t.Fatal(err)
		}
		if terminal == StateDone {
			for _, s := range []State{StateStarting, StateEncoding, StateFinalizing} {
				if err := m.Transition(s); err != nil {
					t.Fatal(err)
				}
			}
		}
		if err := m.Transition(terminal); err != nil {
			t.Fatalf("commit %s: %v", terminal, err)
		}

		if err := m.Transition(StateEncoding); !errors.Is(err, ErrTerminalCommitted) {
			t.Fatalf("transition after %s: got %v", terminal, err)
		}
		if err := m.Transition(StateError); !errors.Is(err, ErrTerminalCommitted) {
			t.Fatalf("second terminal after %s: got %v", terminal, err)
		}
		if err := m.AssertCanEmitProgress(); !errors.Is(err, ErrProgressAfterTerminal) {
			t.Fatalf("progress after %s: got %v", terminal, err)
		}
		if err := m.AssertCanMutateMetrics("spawn_latency_ms"); !errors.Is(err, ErrMetricsAfterTerminal) {
			t.Fatalf("metrics after %s: got %v", terminal, err)
		}
	}
}

func TestGuardsAllowedWhileActive(t *testing.T) {
	m := New()
	if err := m.Transition(StateWarmingUp); err != nil {
		t.Fatal(err)
	}
	if err := m.AssertCanEmitProgress(); err != nil {
		t.Fatalf("progress while active: %v", err)
	}
	if err := m.AssertCanMutateMetrics("first_progress_ms"); err != nil {
		t.Fatalf("metrics while active: %v", err)
	}
}

func TestObserverSeesCommittedTransitions(t *testing.T) {
	m := New()
	type edge struct{ from, to State }
	var seen []edge
	m.SetObserver(func(from, to State) {
		if m.State() != to {
			t.Errorf("observer ran before state update: state=%s to=%s", m.State(), to)
		}
		seen = append(seen, edge{from, to})
	})

	chain := []State{StateWarmingUp, StateStarting, StateEncoding, StateFinalizing, StateDone}
	for _, target := range chain {
		if err := m.Transition(target); err != nil {
			t.Fatal(err)
		}
	}
	// A rejected transition must not notify.
	_ = m.Transition(StateEncoding)

	if len(seen) != len(chain) {
		t.Fatalf("observer saw %d transitions, want %d", len(seen), len(chain))
	}
	prev := StateInit
	for i, e := range seen {
		if e.from != prev || e.to != chain[i] {
			t.Fatalf("transition %d = %s->%s, want %s->%s", i, e.from, e.to, prev, chain[i])
		}
		prev = e.to
	}
}
