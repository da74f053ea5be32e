package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/taskchain/internal/events"
	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// Run executes the action once. A nil return is success. Run may be called
// again after it returns but must not be re-entered concurrently.
func (a *Action) Run(ctx context.Context) error {
	if a.rt == nil {
		return schema.NewError(schema.ErrCodeInternal, "action is not bound to a runtime").WithAction(a.id.String())
	}

	ctx = logging.WithActionID(ctx, a.id.String())
	start := time.Now()

	var err error
	switch a.kind {
	case KindInvoke:
		err = a.invoke(ctx)
	case KindSequence:
		err = a.runSequence(ctx)
	case KindConcurrency:
		err = a.runConcurrency(ctx)
	case KindSync:
		err = a.runSync(ctx)
	case KindTrigger:
		err = a.runTrigger(ctx)
	case KindCatch:
		err = a.runCatch(ctx)
	case KindIfElse:
		err = a.runIfElse(ctx)
	case KindSelect:
		err = a.runSelect(ctx)
	case KindGraph:
		err = a.runGraph(ctx)
	default:
		err = schema.NewErrorf(schema.ErrCodeInternal, "unknown action kind %q", a.kind)
	}

	if obs := a.rt.Observer; obs != nil {
		obs.ActionFinished(ctx, a, time.Since(start), err)
	}
	return err
}

func (a *Action) runSequence(ctx context.Context) error {
	for _, child := range a.children {
		if err := child.Run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runConcurrency admits children in declaration order through the gate and
// joins every spawned branch, even after a sibling failed. The result is the
// failure with the lowest declaration index.
func (a *Action) runConcurrency(ctx context.Context) error {
	results := make([]error, len(a.children))
	handles := make([]*scheduler.Handle, len(a.children))

	for i, child := range a.children {
		if err := a.gate.Acquire(ctx, 1); err != nil {
			results[i] = err
			continue
		}
		child := child
		h, err := a.rt.Scheduler.Spawn(ctx, func(ctx context.Context) error {
			defer a.gate.Release(1)
			return child.Run(ctx)
		})
		if err != nil {
			a.gate.Release(1)
			results[i] = schema.NewErrorf(schema.ErrCodeSchedulerUnavailable,
				"spawn branch %d of %s", i, a.id).WithCause(err)
			continue
		}
		handles[i] = h
	}

	for i, h := range handles {
		if h == nil {
			continue
		}
		<-h.Done()
		results[i] = h.Err()
	}

	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Action) runSync(ctx context.Context) error {
	if a.syncMode == SyncNotify {
		return a.notifier.Notify(ctx, a.value)
	}
	_, err := a.listener.Next(ctx)
	return err
}

// runTrigger waits for one signal and runs the child once for it. A closed
// signal moves the Trigger to Done; later runs return immediately.
func (a *Action) runTrigger(ctx context.Context) error {
	m := a.trigger
	switch m.Current() {
	case TriggerDone:
		return nil
	case TriggerRunning:
		return schema.NewError(schema.ErrCodeInvalidTransition, "trigger is already running").WithAction(a.id.String())
	case TriggerIdle:
		if err := m.Transition(TriggerArmed); err != nil {
			return err
		}
	}

	if _, err := a.signal.Next(ctx); err != nil {
		if events.IsClosed(err) {
			a.rt.logger().DebugContext(ctx, "trigger signal closed", slog.Int64("fires", a.fires.Load()))
			return m.Transition(TriggerDone)
		}
		return err
	}

	if err := m.Transition(TriggerRunning); err != nil {
		return err
	}
	a.fires.Add(1)
	err := a.children[0].Run(ctx)
	if terr := m.Transition(TriggerArmed); terr != nil && err == nil {
		err = terr
	}
	return err
}

func (a *Action) runCatch(ctx context.Context) error {
	err := a.children[0].Run(ctx)
	if err == nil || !a.filter.Matches(err) {
		return err
	}

	if a.handler != nil && !a.handler(ctx, err) {
		return err
	}

	a.recordSuppressed(err)
	if obs := a.rt.Observer; obs != nil {
		obs.FailureSuppressed(ctx, a, err)
	}
	a.rt.logger().DebugContext(ctx, "failure absorbed", slog.String("error", err.Error()))
	return nil
}

func (a *Action) runIfElse(ctx context.Context) error {
	ok, err := a.cond(ctx)
	if err != nil {
		return schema.NewError(schema.ErrCodeUser, "condition failed").WithAction(a.id.String()).WithCause(err)
	}
	if ok {
		return a.children[0].Run(ctx)
	}
	if len(a.children) > 1 {
		return a.children[1].Run(ctx)
	}
	return nil
}
