// SPDX-License-Identifier: MIT

// Package fsm implements a small, strict finite state machine runner used by
// the monetization gate and the session lifecycle.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is wrapped by Fire when the current state has no edge
// for the event.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge in the machine.
// Guard may reject the transition; Action performs side-effects and must
// succeed before the state moves.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

// Observer is notified after every committed transition.
type Observer[S ~string, E ~string] func(from, to S, event E)

// Machine is a strict state machine: events with no edge out of the current
// state are errors, never silent no-ops.
type Machine[S ~string, E ~string] struct {
	// fireMu serializes Fire end to end, Guard and Action included, so an
	// Action runs at most once per committed transition even under
	// concurrent duplicate events.
	fireMu sync.Mutex

	mu        sync.Mutex
	state     S
	edges     map[edgeKey[S, E]]Transition[S, E]
	observers []Observer[S, E]
}

type edgeKey[S ~string, E ~string] struct {
	from  S
	event E
}

func New[S ~string, E ~string](initial S, transitions []Transition[S, E], observers ...Observer[S, E]) (*Machine[S, E], error) {
	edges := make(map[edgeKey[S, E]]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := edgeKey[S, E]{from: t.From, event: t.Event}
		if _, exists := edges[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		edges[k] = t
	}
	return &Machine[S, E]{state: initial, edges: edges, observers: observers}, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Is reports whether the machine is currently in state s.
func (m *Machine[S, E]) Is(s S) bool {
	return m.State() == s
}

// Fire attempts to apply an event atomically. Concurrent Fire calls are
// serialized; the loser of a duplicate-event race observes the committed
// state and gets ErrInvalidTransition if no edge leads out of it. State()
// stays readable while a Guard or Action is in flight.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.fireMu.Lock()
	defer m.fireMu.Unlock()

	m.mu.Lock()
	from := m.state
	m.mu.Unlock()

	t, ok := m.edges[edgeKey[S, E]{from: from, event: event}]
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	to := t.To

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	m.state = to
	m.mu.Unlock()

	for _, obs := range m.observers {
		obs(from, to, event)
	}

	return to, nil
}
