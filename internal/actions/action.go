// Package actions defines the action graph: a closed set of action kinds
// that compose into a program body.
package actions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/rendis/taskchain/internal/events"
	"github.com/rendis/taskchain/internal/fsm"
)

// Kind enumerates the action variants.
type Kind string

const (
	KindInvoke      Kind = "invoke"
	KindSequence    Kind = "sequence"
	KindConcurrency Kind = "concurrency"
	KindSync        Kind = "sync"
	KindTrigger     Kind = "trigger"
	KindCatch       Kind = "catch"
	KindIfElse      Kind = "if_else"
	KindSelect      Kind = "select"
	KindGraph       Kind = "graph"
)

// NamedID identifies an action inside one program. Index disambiguates
// actions sharing a name; zero means no disambiguator.
type NamedID struct {
	Name  string `json:"name"`
	Index int    `json:"index,omitempty"`
}

func (n NamedID) String() string {
	if n.Index == 0 {
		return n.Name
	}
	return fmt.Sprintf("%s#%d", n.Name, n.Index)
}

// IsZero reports whether the ID is unset.
func (n NamedID) IsZero() bool {
	return n.Name == "" && n.Index == 0
}

// InvokeFunc is the unit of work wrapped by an Invoke action. A nil return is
// success.
type InvokeFunc func(ctx context.Context) error

// ConditionFunc decides which branch an IfElse runs.
type ConditionFunc func(ctx context.Context) (bool, error)

// SyncMode selects the direction of a Sync action.
type SyncMode string

const (
	SyncNotify SyncMode = "notify"
	SyncListen SyncMode = "listen"
)

// Action is one node of the graph. Build actions with the constructors in
// this package; the zero value is not usable.
type Action struct {
	kind     Kind
	id       NamedID
	pinned   bool
	children []*Action

	rt *Runtime

	invoke InvokeFunc

	maxConcurrent int
	gate          *semaphore.Weighted

	syncMode SyncMode
	syncTag  string
	notifier events.Notifier
	listener events.Listener
	value    uint32

	signal  events.Listener
	fires   atomic.Int64
	trigger *fsm.Machine[TriggerState]

	filter  ErrorFilter
	handler CatchHandler
	diagMu  sync.Mutex
	diag    []error

	cond ConditionFunc

	graph *dag
}

// Invoke wraps fn as a leaf. name is the action's NamedID name; repeated
// names are disambiguated when the program is built.
func Invoke(name string, fn InvokeFunc) *Action {
	return &Action{kind: KindInvoke, id: NamedID{Name: name}, invoke: fn}
}

// Sequence runs children in order, stopping at the first failure.
func Sequence(children ...*Action) *Action {
	return &Action{kind: KindSequence, children: children}
}

// Concurrency runs all children concurrently, admitting at most the
// configured number at a time, and waits for every one of them.
func Concurrency(children ...*Action) *Action {
	return &Action{kind: KindConcurrency, children: children}
}

// SyncNotifyOn sends value on n when run.
func SyncNotifyOn(tag string, n events.Notifier, value uint32) *Action {
	return &Action{kind: KindSync, syncMode: SyncNotify, syncTag: tag, notifier: n, value: value}
}

// SyncListenOn waits for the next value on l when run.
func SyncListenOn(tag string, l events.Listener) *Action {
	return &Action{kind: KindSync, syncMode: SyncListen, syncTag: tag, listener: l}
}

// Trigger runs child once for each value received on signal. Every run of
// the Trigger handles exactly one value; the state machine is kept across
// runs and reaches Done when the signal source is closed.
func Trigger(signal events.Listener, child *Action) *Action {
	return &Action{kind: KindTrigger, signal: signal, children: []*Action{child}, trigger: newTriggerMachine()}
}

// IfElse runs then when cond holds, otherwise els. els may be nil.
func IfElse(cond ConditionFunc, then, els *Action) *Action {
	children := []*Action{then}
	if els != nil {
		children = append(children, els)
	}
	return &Action{kind: KindIfElse, cond: cond, children: children}
}

// Named sets the NamedID name; the index is still assigned at build time.
func (a *Action) Named(name string) *Action {
	a.id = NamedID{Name: name}
	a.pinned = false
	return a
}

// WithID pins the full NamedID. Pinned IDs are registered as given, so two
// equal pinned IDs make the build fail.
func (a *Action) WithID(id NamedID) *Action {
	a.id = id
	a.pinned = true
	return a
}

// WithMaxConcurrent overrides the admission cap of a Concurrency or Graph
// action. It has no effect on other kinds.
func (a *Action) WithMaxConcurrent(n int) *Action {
	if a.kind == KindConcurrency || a.kind == KindGraph {
		a.maxConcurrent = n
	}
	return a
}

// Kind returns the variant.
func (a *Action) Kind() Kind { return a.kind }

// ID returns the NamedID. Before the program is built it may be zero.
func (a *Action) ID() NamedID { return a.id }

// Pinned reports whether the ID was fixed with WithID.
func (a *Action) Pinned() bool { return a.pinned }

// SetID is used by the program builder to assign the final NamedID.
func (a *Action) SetID(id NamedID) { a.id = id }

// Children returns the directly owned actions in declaration order.
func (a *Action) Children() []*Action { return a.children }

// MaxConcurrent returns the local admission cap, or 0 if the runtime default
// applies.
func (a *Action) MaxConcurrent() int { return a.maxConcurrent }

// SyncMode returns the direction of a Sync action.
func (a *Action) SyncMode() SyncMode { return a.syncMode }

// SyncTag returns the tag a Sync action is bound to.
func (a *Action) SyncTag() string { return a.syncTag }

// Fires returns how many signals a Trigger has acted on.
func (a *Action) Fires() int64 { return a.fires.Load() }

// TriggerState returns the state of a Trigger. Other kinds report idle.
func (a *Action) TriggerState() TriggerState {
	if m := a.trigger; m != nil {
		return m.Current()
	}
	return TriggerIdle
}

// Walk visits a and its descendants depth-first in declaration order.
func (a *Action) Walk(fn func(a *Action, depth int) error) error {
	return a.walk(fn, 0)
}

func (a *Action) walk(fn func(a *Action, depth int) error, depth int) error {
	if err := fn(a, depth); err != nil {
		return err
	}
	for _, c := range a.children {
		if c == nil {
			continue
		}
		if err := c.walk(fn, depth+1); err != nil {
			return err
		}
	}
	return nil
}
