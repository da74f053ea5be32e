package actions

import (
	"context"
	"log/slog"

	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// Select runs its cases concurrently and reports the result of the first
// case to finish. The remaining cases are cancelled through their context
// and joined before Select returns.
func Select(cases ...*Action) *Action {
	return &Action{kind: KindSelect, children: cases}
}

type caseResult struct {
	index int
	err   error
}

func (a *Action) runSelect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan caseResult, len(a.children))
	handles := make([]*scheduler.Handle, 0, len(a.children))

	var spawnErr error
	for i, child := range a.children {
		child := child
		h, err := a.rt.Scheduler.Spawn(ctx, func(ctx context.Context) error {
			return child.Run(ctx)
		})
		if err != nil {
			spawnErr = schema.NewErrorf(schema.ErrCodeSchedulerUnavailable,
				"spawn case %d of %s", i, a.id).WithCause(err)
			break
		}
		handles = append(handles, h)
		go func(i int) {
			<-h.Done()
			finished <- caseResult{index: i, err: h.Err()}
		}(i)
		if h.Finished() {
			// Decided already; an inline scheduler always ends up here.
			break
		}
	}
	if len(handles) == 0 {
		return spawnErr
	}

	winner := <-finished
	cancel()
	for _, h := range handles {
		<-h.Done()
	}

	a.rt.logger().DebugContext(ctx, "select resolved",
		slog.Int("case", winner.index), slog.Int("cases", len(a.children)))
	return winner.err
}
