// Package engine drives programs on a scheduler and bridges their
// asynchronous execution back to a synchronous caller.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/taskchain/internal/barrier"
	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/internal/program"
	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// Engine runs programs as single units of work on a scheduler. It imposes no
// timeout of its own.
type Engine struct {
	sched   scheduler.Scheduler
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine on sched.
func New(sched scheduler.Scheduler, opts ...Option) *Engine {
	e := &Engine{sched: sched, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run is a program run launched on the engine.
type Run struct {
	Program string
	handle  *scheduler.Handle
	report  *program.RunReport
	err     error
}

// Done is closed when the run has resolved.
func (r *Run) Done() <-chan struct{} { return r.handle.Done() }

// Result returns the report and run error. Call it after Done is closed.
func (r *Run) Result() (*program.RunReport, error) {
	<-r.handle.Done()
	return r.report, r.err
}

// Launch schedules p.RunN(n) as one unit of work and returns immediately.
// When the run resolves, ready (if not nil) is signalled.
func (e *Engine) Launch(ctx context.Context, p *program.Program, n int, ready *barrier.ReadyNotifier) (*Run, error) {
	if e.sched == nil {
		return nil, schema.NewError(schema.ErrCodeSchedulerUnavailable, "engine has no scheduler")
	}
	run := &Run{Program: p.Name()}
	ctx = logging.WithProgram(ctx, p.Name())

	h, err := e.sched.Spawn(ctx, func(ctx context.Context) error {
		start := time.Now()
		run.report, run.err = p.RunN(ctx, n)
		e.finish(ctx, run, time.Since(start))
		if ready != nil {
			if err := ready.Ready(); err != nil {
				e.logger.ErrorContext(ctx, "ready notifier misuse", slog.String("error", err.Error()))
			}
		}
		return run.err
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSchedulerUnavailable, "launch program %q", p.Name()).WithCause(err)
	}
	run.handle = h
	return run, nil
}

func (e *Engine) finish(ctx context.Context, run *Run, elapsed time.Duration) {
	attrs := []any{slog.Duration("elapsed", elapsed)}
	if run.report != nil {
		attrs = append(attrs,
			slog.String("run_id", run.report.RunID),
			slog.Int("iterations", len(run.report.Iterations)),
			slog.Int("failed", len(run.report.Failed())))
	}
	if run.err != nil {
		attrs = append(attrs, slog.String("error", run.err.Error()))
		e.logger.ErrorContext(ctx, "program run aborted", attrs...)
	} else {
		e.logger.InfoContext(ctx, "program run finished", attrs...)
	}
	if e.metrics != nil {
		e.metrics.RunFinished(run.Program, run.report, run.err)
	}
}

// Enter schedules the run and blocks until it resolves.
func (e *Engine) Enter(ctx context.Context, p *program.Program, n int) (*program.RunReport, error) {
	run, err := e.Launch(ctx, p, n, nil)
	if err != nil {
		return nil, err
	}
	return run.Result()
}

// RunAll launches every program and waits for all of them on a barrier
// bounded by timeout. On a barrier timeout the returned runs may still be in
// progress.
func (e *Engine) RunAll(ctx context.Context, programs []*program.Program, n int, timeout time.Duration) ([]*Run, error) {
	if len(programs) == 0 {
		return nil, nil
	}
	b := barrier.New(len(programs))
	runs := make([]*Run, 0, len(programs))

	for _, p := range programs {
		ready, ok := b.GetNotifier()
		if !ok {
			return runs, schema.NewError(schema.ErrCodeInternal, "barrier tokens exhausted")
		}
		run, err := e.Launch(ctx, p, n, ready)
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}

	if err := b.WaitForAll(timeout); err != nil {
		e.logger.WarnContext(ctx, "programs did not finish in time",
			slog.Int("programs", len(programs)), slog.Int("finished", b.Arrived()))
		return runs, err
	}
	return runs, nil
}
