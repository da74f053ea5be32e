package actions

import (
	"context"
	"errors"

	"github.com/rendis/taskchain/pkg/schema"
)

// ErrorFilter selects which failure classes a Catch absorbs.
type ErrorFilter uint8

const (
	FilterUserErrors ErrorFilter = 1 << iota
	FilterTimeouts
	// FilterAll absorbs every failure, including uncoded errors.
	FilterAll ErrorFilter = 0xFF
)

// Matches reports whether err belongs to a class selected by f.
func (f ErrorFilter) Matches(err error) bool {
	if err == nil {
		return false
	}
	if f == FilterAll {
		return true
	}
	if f&FilterUserErrors != 0 && schema.IsCode(err, schema.ErrCodeUser) {
		return true
	}
	if f&FilterTimeouts != 0 &&
		(schema.IsCode(err, schema.ErrCodeTimeout) || errors.Is(err, context.DeadlineExceeded)) {
		return true
	}
	return false
}

// CatchHandler sees every absorbed failure. Returning false makes the Catch
// report the failure after all.
type CatchHandler func(ctx context.Context, err error) bool

// CatchOption configures a Catch action.
type CatchOption func(*Action)

// WithFilter limits which failures are absorbed. Others pass through.
func WithFilter(f ErrorFilter) CatchOption {
	return func(a *Action) {
		a.filter = f
	}
}

// WithHandler calls fn for every absorbed failure.
func WithHandler(fn func(ctx context.Context, err error)) CatchOption {
	return func(a *Action) {
		a.handler = func(ctx context.Context, err error) bool {
			fn(ctx, err)
			return true
		}
	}
}

// WithRecoverableHandler lets fn decide whether an absorbed failure is
// recovered (true) or reported (false).
func WithRecoverableHandler(fn CatchHandler) CatchOption {
	return func(a *Action) {
		a.handler = fn
	}
}

// Catch runs child and absorbs its failure. Without options every failure
// is absorbed and Catch always succeeds.
func Catch(child *Action, opts ...CatchOption) *Action {
	a := &Action{kind: KindCatch, filter: FilterAll, children: []*Action{child}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Filter returns the classes a Catch absorbs.
func (a *Action) Filter() ErrorFilter { return a.filter }

// Suppressed returns the failures this Catch has absorbed, oldest first.
func (a *Action) Suppressed() []error {
	a.diagMu.Lock()
	defer a.diagMu.Unlock()

	out := make([]error, len(a.diag))
	copy(out, a.diag)
	return out
}

// SuppressedCount returns how many failures this Catch has absorbed.
func (a *Action) SuppressedCount() int {
	a.diagMu.Lock()
	defer a.diagMu.Unlock()
	return len(a.diag)
}

func (a *Action) recordSuppressed(err error) {
	a.diagMu.Lock()
	a.diag = append(a.diag, err)
	a.diagMu.Unlock()
}
