package design

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/pkg/schema"
)

// RegisterBuiltins adds the stock invokes:
//
//	noop            succeed immediately
//	log[:message]   log message (or the action ID) at info level
//	sleep:<d>       wait d, honouring cancellation
//	fail[:message]  fail with a USER_ERROR
func RegisterBuiltins(c *Catalog, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	builtins := map[string]Factory{
		"noop": func(arg string) (actions.InvokeFunc, error) {
			return func(ctx context.Context) error { return nil }, nil
		},
		"log": func(arg string) (actions.InvokeFunc, error) {
			return func(ctx context.Context) error {
				msg := arg
				if msg == "" {
					msg = logging.ActionID(ctx)
				}
				logging.LogWith(ctx, logger).Info(msg)
				return nil
			}, nil
		},
		"sleep": func(arg string) (actions.InvokeFunc, error) {
			d, err := time.ParseDuration(arg)
			if err != nil || d < 0 {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "sleep needs a non-negative duration, got %q", arg)
			}
			return func(ctx context.Context) error {
				t := time.NewTimer(d)
				defer t.Stop()
				select {
				case <-t.C:
					return nil
				case <-ctx.Done():
					return schema.NewError(schema.ErrCodeCancelled, "sleep interrupted").WithCause(ctx.Err())
				}
			}, nil
		},
		"fail": func(arg string) (actions.InvokeFunc, error) {
			msg := arg
			if msg == "" {
				msg = "fail invoked"
			}
			return func(ctx context.Context) error {
				return schema.UserError(1, msg).WithAction(logging.ActionID(ctx))
			}, nil
		},
	}

	for _, name := range []string{"noop", "log", "sleep", "fail"} {
		if err := c.RegisterFactory(name, builtins[name]); err != nil {
			return err
		}
	}
	return nil
}
