// Package fsm is a small table-driven state machine used for action and
// program lifecycles.
package fsm

import (
	"sync"

	"github.com/rendis/taskchain/pkg/schema"
)

// Table lists, for each state, the states it may move to.
type Table[S ~string] map[S][]S

// Allows reports whether from -> to is in the table.
func (t Table[S]) Allows(from, to S) bool {
	for _, a := range t[from] {
		if a == to {
			return true
		}
	}
	return false
}

// TransitionHook is called before or after a transition. A before-hook error
// aborts the transition.
type TransitionHook[S ~string] func(from, to S) error

type hookKey[S ~string] struct {
	from, to S
}

// Machine holds a current state and moves it along a Table.
type Machine[S ~string] struct {
	name  string
	table Table[S]

	mu      sync.Mutex
	current S
	before  map[hookKey[S]][]TransitionHook[S]
	after   map[hookKey[S]][]TransitionHook[S]
}

// New creates a machine in the initial state. name appears in errors.
func New[S ~string](name string, table Table[S], initial S) *Machine[S] {
	return &Machine[S]{
		name:    name,
		table:   table,
		current: initial,
		before:  make(map[hookKey[S]][]TransitionHook[S]),
		after:   make(map[hookKey[S]][]TransitionHook[S]),
	}
}

// OnBefore registers a hook called before from -> to.
func (m *Machine[S]) OnBefore(from, to S, hook TransitionHook[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := hookKey[S]{from, to}
	m.before[k] = append(m.before[k], hook)
}

// OnAfter registers a hook called after from -> to.
func (m *Machine[S]) OnAfter(from, to S, hook TransitionHook[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := hookKey[S]{from, to}
	m.after[k] = append(m.after[k], hook)
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to the given state, running hooks. Moves not in the table
// fail with INVALID_TRANSITION and leave the state unchanged.
func (m *Machine[S]) Transition(to S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !m.table.Allows(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid %s transition: %s -> %s", m.name, from, to).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}

	k := hookKey[S]{from, to}
	for _, hook := range m.before[k] {
		if err := hook(from, to); err != nil {
			return err
		}
	}

	m.current = to

	for _, hook := range m.after[k] {
		if err := hook(from, to); err != nil {
			return err
		}
	}
	return nil
}
