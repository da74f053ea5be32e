package actions

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// Observer receives action telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ActionFinished(ctx context.Context, a *Action, elapsed time.Duration, err error)
	FailureSuppressed(ctx context.Context, a *Action, err error)
}

// Runtime is what a bound action tree needs to run: the scheduler for
// Concurrency branches, the default admission cap, and telemetry sinks.
type Runtime struct {
	Scheduler     scheduler.Scheduler
	MaxConcurrent int
	Observer      Observer
	Logger        *slog.Logger
}

func (rt *Runtime) logger() *slog.Logger {
	if rt == nil || rt.Logger == nil {
		return slog.Default()
	}
	return rt.Logger
}

// Bind checks the tree rooted at root and attaches rt to every node,
// creating one admission gate per Concurrency and Graph action. A tree must
// be bound before it runs.
func Bind(root *Action, rt *Runtime) error {
	if root == nil {
		return schema.NewError(schema.ErrCodeMissingBody, "action tree is nil")
	}
	if rt == nil || rt.Scheduler == nil {
		return schema.NewError(schema.ErrCodeSchedulerUnavailable, "runtime has no scheduler")
	}
	if rt.MaxConcurrent <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "runtime concurrency cap must be positive, got %d", rt.MaxConcurrent)
	}

	return root.Walk(func(a *Action, _ int) error {
		if err := a.check(); err != nil {
			return err
		}
		a.rt = rt
		if a.kind == KindConcurrency || a.kind == KindGraph {
			limit := a.maxConcurrent
			if limit == 0 {
				limit = rt.MaxConcurrent
			}
			a.gate = semaphore.NewWeighted(int64(limit))
		}
		return nil
	})
}

func (a *Action) check() error {
	invalid := func(format string, args ...any) error {
		return schema.NewErrorf(schema.ErrCodeValidation, format, args...).WithAction(a.id.String())
	}

	for i, c := range a.children {
		if c == nil {
			return invalid("%s child %d is nil", a.kind, i)
		}
	}

	switch a.kind {
	case KindInvoke:
		if a.invoke == nil {
			return invalid("invoke has no function")
		}
	case KindSequence, KindConcurrency:
		if a.maxConcurrent < 0 {
			return invalid("max concurrent must not be negative, got %d", a.maxConcurrent)
		}
	case KindSelect:
		if len(a.children) == 0 {
			return invalid("select needs at least one case")
		}
	case KindGraph:
		if a.graph == nil || len(a.children) == 0 {
			return invalid("graph has no nodes")
		}
		if a.maxConcurrent < 0 {
			return invalid("max concurrent must not be negative, got %d", a.maxConcurrent)
		}
	case KindSync:
		if a.syncMode == SyncNotify && a.notifier == nil {
			return invalid("sync %q has no notifier", a.syncTag)
		}
		if a.syncMode == SyncListen && a.listener == nil {
			return invalid("sync %q has no listener", a.syncTag)
		}
	case KindTrigger:
		if a.signal == nil {
			return invalid("trigger has no signal")
		}
		if len(a.children) != 1 {
			return invalid("trigger needs exactly one child")
		}
	case KindCatch:
		if len(a.children) != 1 {
			return invalid("catch needs exactly one child")
		}
	case KindIfElse:
		if a.cond == nil {
			return invalid("if_else has no condition")
		}
	default:
		return invalid("unknown action kind %q", a.kind)
	}
	return nil
}
