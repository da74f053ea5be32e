package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rendis/taskchain/pkg/schema"
)

// ExecutorMetrics tracks executor operational counters.
type ExecutorMetrics struct {
	Spawned   int64 `json:"spawned"`
	Respawned int64 `json:"respawned"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// Executor runs every task on its own goroutine. It does not bound the
// number of tasks; admission limits belong to the Concurrency actions that
// spawn branches, so nested branches can never starve their parents.
type Executor struct {
	logger  *slog.Logger
	wg      sync.WaitGroup
	metrics ExecutorMetrics
	mu      sync.Mutex
	closed  bool
}

// NewExecutor creates a running executor.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Spawn starts task on a new goroutine. It fails with SCHEDULER_UNAVAILABLE
// once Shutdown has been called.
func (e *Executor) Spawn(ctx context.Context, task Task) (*Handle, error) {
	if task == nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "spawn of a nil task")
	}
	return e.start(ctx, newHandle(task, 0))
}

// Respawn re-submits the task of a finished handle.
func (e *Executor) Respawn(ctx context.Context, h *Handle) (*Handle, error) {
	if err := checkRespawnable(h); err != nil {
		return nil, err
	}
	next, err := e.start(ctx, newHandle(h.task, h.respawns+1))
	if err == nil {
		atomic.AddInt64(&e.metrics.Respawned, 1)
	}
	return next, err
}

func (e *Executor) start(ctx context.Context, h *Handle) (*Handle, error) {
	// wg.Add must happen under the lock so Shutdown's Wait cannot miss it.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, schema.NewError(schema.ErrCodeSchedulerUnavailable, "executor is shut down")
	}
	e.wg.Add(1)
	atomic.AddInt64(&e.metrics.Spawned, 1)
	atomic.AddInt64(&e.metrics.Active, 1)
	e.mu.Unlock()

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				atomic.AddInt64(&e.metrics.Panics, 1)
				e.logger.ErrorContext(ctx, "task panicked", slog.Uint64("task_id", h.id), slog.Any("panic", r))
				err = schema.NewErrorf(schema.ErrCodeInternal, "task panicked: %v", r).
					WithCause(fmt.Errorf("%v", r))
			}
			if err != nil {
				atomic.AddInt64(&e.metrics.Failed, 1)
			} else {
				atomic.AddInt64(&e.metrics.Completed, 1)
			}
			atomic.AddInt64(&e.metrics.Active, -1)
			h.finish(err)
			e.wg.Done()
		}()

		err = h.task(ctx)
	}()

	return h, nil
}

// Wait blocks until every spawned task has returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Shutdown rejects new spawns and waits for running tasks, or for ctx.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics returns a snapshot of the executor counters.
func (e *Executor) Metrics() ExecutorMetrics {
	return ExecutorMetrics{
		Spawned:   atomic.LoadInt64(&e.metrics.Spawned),
		Respawned: atomic.LoadInt64(&e.metrics.Respawned),
		Active:    atomic.LoadInt64(&e.metrics.Active),
		Completed: atomic.LoadInt64(&e.metrics.Completed),
		Failed:    atomic.LoadInt64(&e.metrics.Failed),
		Panics:    atomic.LoadInt64(&e.metrics.Panics),
	}
}
