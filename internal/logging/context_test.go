package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, "", Program(ctx))
	_, ok := Iteration(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "run-1")
	ctx = WithProgram(ctx, "camera")
	ctx = WithIteration(ctx, 0)
	ctx = WithActionID(ctx, "read_input")

	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "camera", Program(ctx))
	i, ok := Iteration(ctx)
	assert.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "read_input", ActionID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithProgram(WithRunID(context.Background(), "run-abc"), "fusion")
	LogWith(ctx, logger).Info("iteration done")

	out := buf.String()
	assert.Contains(t, out, "run_id=run-abc")
	assert.Contains(t, out, "program=fusion")
	assert.NotContains(t, out, "iteration=")
	assert.NotContains(t, out, "action_id=")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithIteration(WithActionID(context.Background(), "t1"), 2)
	logger.InfoContext(ctx, "invoke")

	out := buf.String()
	assert.Contains(t, out, "action_id=t1")
	assert.Contains(t, out, "iteration=2")
}

func TestCorrelationHandler_WithAttrsKeepsInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil))).With("component", "engine")

	logger.InfoContext(WithRunID(context.Background(), "r"), "start")

	out := buf.String()
	assert.Contains(t, out, "component=engine")
	assert.Contains(t, out, "run_id=r")
}

func TestNew_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
