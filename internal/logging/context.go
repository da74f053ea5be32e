package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	programKey
	iterationKey
	actionIDKey
)

// WithRunID returns a context carrying the run ID of an engine run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithProgram returns a context carrying the program name.
func WithProgram(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, programKey, name)
}

// WithIteration returns a context carrying the zero-based run_n iteration.
func WithIteration(ctx context.Context, i int) context.Context {
	return context.WithValue(ctx, iterationKey, i)
}

// WithActionID returns a context carrying the ID of the action being run.
func WithActionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actionIDKey, id)
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// Program extracts the program name from the context, or "" if absent.
func Program(ctx context.Context) string {
	v, _ := ctx.Value(programKey).(string)
	return v
}

// Iteration extracts the iteration index. ok is false outside of run_n.
func Iteration(ctx context.Context) (i int, ok bool) {
	i, ok = ctx.Value(iterationKey).(int)
	return i, ok
}

// ActionID extracts the action ID from the context, or "" if absent.
func ActionID(ctx context.Context) string {
	v, _ := ctx.Value(actionIDKey).(string)
	return v
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := RunID(ctx); v != "" {
		attrs = append(attrs, slog.String("run_id", v))
	}
	if v := Program(ctx); v != "" {
		attrs = append(attrs, slog.String("program", v))
	}
	if v, ok := Iteration(ctx); ok {
		attrs = append(attrs, slog.Int("iteration", v))
	}
	if v := ActionID(ctx); v != "" {
		attrs = append(attrs, slog.String("action_id", v))
	}
	return attrs
}

// LogWith returns a logger enriched with the correlation values in ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds the correlation values
// of the record's context, so logger.InfoContext(ctx, ...) needs no extra attrs.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
