// Package scheduler defines the capability the engine needs from an
// executor (spawn a task, re-submit a finished task) and two implementations:
// a goroutine-backed Executor and a deterministic Mock for tests.
package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/rendis/taskchain/pkg/schema"
)

// Task is one unit of asynchronous work. A nil return is success.
type Task func(ctx context.Context) error

// Scheduler spawns tasks and re-submits finished ones.
type Scheduler interface {
	// Spawn starts task and returns a handle to join it.
	Spawn(ctx context.Context, task Task) (*Handle, error)
	// Respawn submits the task behind a finished handle again.
	Respawn(ctx context.Context, h *Handle) (*Handle, error)
}

var handleSeq atomic.Uint64

// Handle joins a spawned task.
type Handle struct {
	id       uint64
	task     Task
	respawns int
	done     chan struct{}
	err      error
}

func newHandle(task Task, respawns int) *Handle {
	return &Handle{
		id:       handleSeq.Add(1),
		task:     task,
		respawns: respawns,
		done:     make(chan struct{}),
	}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// ID is unique per spawn, including respawns.
func (h *Handle) ID() uint64 { return h.id }

// Respawns is how many times the underlying task had been re-submitted when
// this handle was created.
func (h *Handle) Respawns() int { return h.respawns }

// Done is closed when the task has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the task returns and yields its result. If ctx ends
// first the context error is returned and the task keeps running.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task result. It is only meaningful once Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Finished reports whether the task has returned.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func checkRespawnable(h *Handle) error {
	if h == nil || h.task == nil {
		return schema.NewError(schema.ErrCodeInvalidTransition, "respawn of an empty handle")
	}
	if !h.Finished() {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "task %d is still running", h.id)
	}
	return nil
}
