package program

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/config"
	"github.com/rendis/taskchain/internal/fsm"
	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// State is the lifecycle state of a Program.
type State string

const (
	StateReady    State = "ready"
	StateRunning  State = "running"
	StateShutDown State = "shut_down"
)

// Transitions is the Program lifecycle table. A program is run any number of
// times and shut down exactly once.
var Transitions = fsm.Table[State]{
	StateReady:   {StateRunning, StateShutDown},
	StateRunning: {StateReady},
}

func newLifecycle() *fsm.Machine[State] {
	return fsm.New("program", Transitions, StateReady)
}

// IterationObserver receives per-iteration telemetry.
type IterationObserver interface {
	IterationFinished(ctx context.Context, program string, index int, elapsed time.Duration, err error)
}

// IterationResult is the outcome of one pass over the body.
type IterationResult struct {
	Index    int           `json:"index"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// RunReport collects the results of a RunN call.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Program    string            `json:"program"`
	Iterations []IterationResult `json:"iterations"`
	Shutdown   error             `json:"-"`
}

// Failed returns the iterations whose body failed.
func (r *RunReport) Failed() []IterationResult {
	var out []IterationResult
	for _, it := range r.Iterations {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Succeeded returns the number of successful iterations.
func (r *RunReport) Succeeded() int {
	return len(r.Iterations) - len(r.Failed())
}

// Err joins every iteration failure and the shutdown failure, or returns nil.
func (r *RunReport) Err() error {
	var errs []error
	for _, it := range r.Failed() {
		errs = append(errs, it.Err)
	}
	if r.Shutdown != nil {
		errs = append(errs, r.Shutdown)
	}
	return errors.Join(errs...)
}

// Program is an immutable, bound action tree plus its shutdown handshake.
type Program struct {
	name     string
	cfg      config.DesignConfig
	body     *actions.Action
	shutdown *actions.Action
	db       *Database

	scheduler    scheduler.Scheduler
	logger       *slog.Logger
	lifecycle    *fsm.Machine[State]
	teardown     []func() error
	iterObserver IterationObserver
}

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Config returns the configuration the program was built with.
func (p *Program) Config() config.DesignConfig { return p.cfg }

// Database returns the frozen registration database.
func (p *Program) Database() *Database { return p.db }

// Body returns the root action.
func (p *Program) Body() *actions.Action { return p.body }

// ShutdownNotification returns the shutdown action, or nil.
func (p *Program) ShutdownNotification() *actions.Action { return p.shutdown }

// State returns the lifecycle state.
func (p *Program) State() State { return p.lifecycle.Current() }

// RunN runs the body n times, one iteration after another, then shuts the
// program down. Iteration failures are kept in the report and do not stop
// later iterations. The returned error is reserved for failures of the run
// itself: lifecycle misuse, an unavailable scheduler or cancellation.
func (p *Program) RunN(ctx context.Context, n int) (*RunReport, error) {
	report, runErr := p.Iterate(ctx, n)
	if report == nil {
		return nil, runErr
	}

	report.Shutdown = p.Shutdown(context.WithoutCancel(ctx))
	return report, runErr
}

// Iterate runs the body n times without shutting down.
func (p *Program) Iterate(ctx context.Context, n int) (*RunReport, error) {
	if n < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "iteration count must not be negative, got %d", n)
	}
	if err := p.lifecycle.Transition(StateRunning); err != nil {
		return nil, err
	}
	defer func() { _ = p.lifecycle.Transition(StateReady) }()

	report := &RunReport{
		RunID:      uuid.NewString(),
		Program:    p.name,
		Iterations: make([]IterationResult, 0, n),
	}
	if logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, report.RunID)
	} else {
		report.RunID = logging.RunID(ctx)
	}
	ctx = logging.WithProgram(ctx, p.name)

	task := func(ctx context.Context) error { return p.body.Run(ctx) }

	var h *scheduler.Handle
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return report, schema.NewErrorf(schema.ErrCodeCancelled,
				"run of %q cancelled before iteration %d", p.name, i).WithCause(err)
		}

		iterCtx := logging.WithIteration(ctx, i)
		start := time.Now()

		var err error
		if h == nil {
			h, err = p.scheduler.Spawn(iterCtx, task)
		} else {
			h, err = p.scheduler.Respawn(iterCtx, h)
		}
		if err != nil {
			return report, schema.NewErrorf(schema.ErrCodeSchedulerUnavailable,
				"schedule iteration %d of %q", i, p.name).WithCause(err)
		}

		<-h.Done()
		res := IterationResult{Index: i, Err: h.Err(), Duration: time.Since(start)}
		report.Iterations = append(report.Iterations, res)
		p.logIteration(iterCtx, res)
		if p.iterObserver != nil {
			p.iterObserver.IterationFinished(iterCtx, p.name, i, res.Duration, res.Err)
		}
	}
	return report, nil
}

func (p *Program) logIteration(ctx context.Context, res IterationResult) {
	if res.Err != nil {
		p.logger.WarnContext(ctx, "iteration failed",
			slog.Duration("iteration_time", res.Duration),
			slog.String("error", res.Err.Error()))
		return
	}
	p.logger.DebugContext(ctx, "iteration finished", slog.Duration("iteration_time", res.Duration))
}

// Shutdown runs the shutdown notification and the teardown hooks. It succeeds
// at most once; later calls fail with INVALID_TRANSITION.
func (p *Program) Shutdown(ctx context.Context) error {
	if err := p.lifecycle.Transition(StateShutDown); err != nil {
		return err
	}
	ctx = logging.WithProgram(ctx, p.name)

	var errs []error
	if p.shutdown != nil {
		if err := p.shutdown.Run(ctx); err != nil {
			p.logger.WarnContext(ctx, "shutdown notification failed", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	for _, fn := range p.teardown {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.InfoContext(ctx, "program shut down")
	return errors.Join(errs...)
}
