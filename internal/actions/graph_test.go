package actions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(entries []string, s string) int {
	for i, e := range entries {
		if e == s {
			return i
		}
	}
	return -1
}

func TestGraph_RunsInDependencyOrder(t *testing.T) {
	rec := &recorder{}
	g := NewGraph()
	fetch := g.Node(rec.invoke("fetch", 0, nil))
	left := g.Node(rec.invoke("left", 5*time.Millisecond, nil))
	right := g.Node(rec.invoke("right", 0, nil))
	merge := g.Node(rec.invoke("merge", 0, nil))
	g.Edges(fetch, left, right).Edges(left, merge).Edges(right, merge)

	graph, err := g.Build()
	require.NoError(t, err)
	bind(t, graph, newExecutor(t), 2)

	require.NoError(t, graph.Run(context.Background()))
	entries := rec.entries()
	require.Len(t, entries, 4)
	assert.Equal(t, "fetch", entries[0])
	assert.Equal(t, "merge", entries[3])
	assert.ElementsMatch(t, []string{"left", "right"}, entries[1:3])

	assert.Equal(t, [][]int{{0}, {1, 2}, {3}}, graph.GraphLevels())
	assert.Equal(t, []int{1, 2}, graph.GraphPredecessors(3))
}

func TestGraph_SortsNodesTopologically(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }
	g := NewGraph()
	last := g.Node(Invoke("last", noop))
	first := g.Node(Invoke("first", noop))
	g.Edges(first, last)

	graph, err := g.Build()
	require.NoError(t, err)
	require.Len(t, graph.Children(), 2)
	assert.Equal(t, "first", graph.Children()[0].ID().Name)
	assert.Equal(t, [][]int{{1}, nil}, graph.GraphEdges())
}

func TestGraph_FailureSkipsSuccessors(t *testing.T) {
	rec := &recorder{}
	boom := schema.UserError(7, "decode failed")

	g := NewGraph()
	src := g.Node(rec.invoke("src", 0, nil))
	decode := g.Node(rec.invoke("decode", 0, boom))
	audit := g.Node(rec.invoke("audit", 0, nil))
	publish := g.Node(rec.invoke("publish", 0, nil))
	g.Edges(src, decode, audit).Edges(decode, publish)

	graph, err := g.Build()
	require.NoError(t, err)
	bind(t, graph, scheduler.NewMock(), 2)

	assert.Same(t, boom, graph.Run(context.Background()))
	entries := rec.entries()
	assert.ElementsMatch(t, []string{"src", "decode", "audit"}, entries)
	assert.Equal(t, -1, indexOf(entries, "publish"))
}

func TestGraph_LatestFailureInOrderWins(t *testing.T) {
	first := schema.UserError(1, "first")
	second := schema.UserError(2, "second")

	g := NewGraph()
	g.Node(Invoke("a", func(ctx context.Context) error { time.Sleep(10 * time.Millisecond); return first }))
	g.Node(Invoke("b", func(ctx context.Context) error { return second }))
	graph, err := g.Build()
	require.NoError(t, err)
	bind(t, graph, newExecutor(t), 2)

	assert.Same(t, second, graph.Run(context.Background()))
}

func TestGraph_AdmissionCap(t *testing.T) {
	var active, peak int64
	leaf := func(name string) *Action {
		return Invoke(name, func(ctx context.Context) error {
			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return nil
		})
	}

	g := NewGraph()
	for _, name := range []string{"a", "b", "c", "d"} {
		g.Node(leaf(name))
	}
	graph, err := g.Build()
	require.NoError(t, err)
	bind(t, graph.WithMaxConcurrent(1), newExecutor(t), 4)

	require.NoError(t, graph.Run(context.Background()))
	assert.Equal(t, int64(1), atomic.LoadInt64(&peak))
}

func TestGraph_BuildErrors(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }
	two := func() *GraphBuilder {
		g := NewGraph()
		g.Node(Invoke("a", noop))
		g.Node(Invoke("b", noop))
		return g
	}

	tests := []struct {
		name string
		g    *GraphBuilder
		code string
	}{
		{"empty", NewGraph(), schema.ErrCodeValidation},
		{"unknown source", two().Edges(5, 0), schema.ErrCodeValidation},
		{"unknown target", two().Edges(0, 9), schema.ErrCodeValidation},
		{"self loop", two().Edges(1, 1), schema.ErrCodeCycleDetected},
		{"duplicate edge", two().Edges(0, 1).Edges(0, 1), schema.ErrCodeValidation},
		{"cycle", two().Edges(0, 1).Edges(1, 0), schema.ErrCodeCycleDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.g.Build()
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, tt.code), "got %v", err)
		})
	}
}
