package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iterCtx(program string, i int) context.Context {
	ctx := logging.WithProgram(context.Background(), program)
	ctx = logging.WithRunID(ctx, "run-1")
	return logging.WithIteration(ctx, i)
}

// --- Scope ---

func TestScope_FromContext(t *testing.T) {
	s := Scope(iterCtx("camera", 3))
	assert.Equal(t, int64(3), s["iteration"])
	assert.Equal(t, "camera", s["program"])
	assert.Equal(t, "run-1", s["run_id"])
}

func TestScope_OutsideRun(t *testing.T) {
	s := Scope(context.Background())
	assert.Equal(t, int64(-1), s["iteration"])
	assert.Equal(t, "", s["program"])
}

// --- Expr ---

func TestExpr_Evaluate(t *testing.T) {
	e := NewExprEngine()
	assert.Equal(t, "expr", e.Name())

	out, err := e.Evaluate(context.Background(), "iteration % 2 == 0", Scope(iterCtx("p", 4)))
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), `program == "p" && iteration > 10`, Scope(iterCtx("p", 4)))
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestExpr_CompileErrors(t *testing.T) {
	e := NewExprEngine()

	err := e.Compile("")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = e.Compile("iteration ==")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestExpr_CachesPrograms(t *testing.T) {
	e := NewExprEngine()
	require.NoError(t, e.Compile("iteration > 0"))
	require.NoError(t, e.Compile("iteration > 0"))
	assert.Len(t, e.cache, 1)
}

// --- CEL ---

func TestCEL_Evaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())

	out, err := e.Evaluate(context.Background(), "iteration >= 2 && program.startsWith('cam')", Scope(iterCtx("camera", 2)))
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_MissingScopeDefaults(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "iteration == 0 && program == ''", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCEL_UndeclaredVariable(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	err = e.Compile("steps.x == 1")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCEL_RuntimeError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "10 / iteration > 1", map[string]any{"iteration": int64(0)})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUser))
}

// --- Evaluator ---

func TestEvaluator_RoutesByPrefix(t *testing.T) {
	ev, err := NewEvaluator()
	require.NoError(t, err)

	for _, expression := range []string{
		"iteration == 1",
		"expr: iteration == 1",
		"cel: iteration == 1",
	} {
		cond, err := ev.Condition(expression)
		require.NoError(t, err, expression)

		ok, err := cond(iterCtx("p", 1))
		require.NoError(t, err, expression)
		assert.True(t, ok, expression)

		ok, err = cond(iterCtx("p", 2))
		require.NoError(t, err, expression)
		assert.False(t, ok, expression)
	}
}

func TestEvaluator_Check(t *testing.T) {
	ev, err := NewEvaluator()
	require.NoError(t, err)

	assert.NoError(t, ev.Check("cel: run_id != ''"))
	// CEL is strict about declarations where expr is not.
	assert.Error(t, ev.Check("cel: unknown > 1"))
	assert.NoError(t, ev.Check("unknown == nil"))
}

func TestEvaluator_NonBooleanResult(t *testing.T) {
	ev, err := NewEvaluator()
	require.NoError(t, err)

	cond, err := ev.Condition("iteration + 1")
	require.NoError(t, err)

	_, err = cond(iterCtx("p", 0))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestEvaluator_ConcurrentUse(t *testing.T) {
	ev, err := NewEvaluator()
	require.NoError(t, err)
	cond, err := ev.Condition("cel: iteration % 3 == 0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := cond(iterCtx("p", i))
			assert.NoError(t, err)
			assert.Equal(t, i%3 == 0, ok)
		}(i)
	}
	wg.Wait()
}
