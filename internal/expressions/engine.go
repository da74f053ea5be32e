// Package expressions evaluates the branch conditions of IfElse actions.
package expressions

import (
	"context"
	"strings"

	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/pkg/schema"
)

// Engine evaluates expressions against a scope.
// Two implementations: Expr (default) and CEL.
type Engine interface {
	Name() string
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, scope map[string]any) (any, error)
}

const celPrefix = "cel:"
const exprPrefix = "expr:"

// Scope builds the variables visible to a condition from the run context:
// iteration (int64, -1 outside of run_n), program and run_id.
func Scope(ctx context.Context) map[string]any {
	iteration := int64(-1)
	if i, ok := logging.Iteration(ctx); ok {
		iteration = int64(i)
	}
	return map[string]any{
		"iteration": iteration,
		"program":   logging.Program(ctx),
		"run_id":    logging.RunID(ctx),
	}
}

// Evaluator routes an expression to an engine by prefix. "cel:" selects CEL,
// "expr:" or no prefix selects Expr.
type Evaluator struct {
	expr *ExprEngine
	cel  *CELEngine
}

// NewEvaluator creates both engines.
func NewEvaluator() (*Evaluator, error) {
	c, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Evaluator{expr: NewExprEngine(), cel: c}, nil
}

func (ev *Evaluator) route(expression string) (Engine, string) {
	switch {
	case strings.HasPrefix(expression, celPrefix):
		return ev.cel, strings.TrimSpace(strings.TrimPrefix(expression, celPrefix))
	case strings.HasPrefix(expression, exprPrefix):
		return ev.expr, strings.TrimSpace(strings.TrimPrefix(expression, exprPrefix))
	default:
		return ev.expr, strings.TrimSpace(expression)
	}
}

// Check compiles expression without running it.
func (ev *Evaluator) Check(expression string) error {
	eng, body := ev.route(expression)
	return eng.Compile(body)
}

// Condition compiles expression and returns a predicate over the run
// context. A non-boolean result is a VALIDATION_ERROR at evaluation time.
func (ev *Evaluator) Condition(expression string) (func(ctx context.Context) (bool, error), error) {
	eng, body := ev.route(expression)
	if err := eng.Compile(body); err != nil {
		return nil, err
	}

	return func(ctx context.Context) (bool, error) {
		out, err := eng.Evaluate(ctx, body, Scope(ctx))
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"%s condition %q returned %T, want bool", eng.Name(), body, out)
		}
		return b, nil
	}, nil
}
