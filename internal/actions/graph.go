package actions

import (
	"context"
	"log/slog"

	"github.com/rendis/taskchain/pkg/schema"
)

// GraphBuilder assembles a Graph action: a set of nodes where a node starts
// once every node it depends on has succeeded.
type GraphBuilder struct {
	nodes []*Action
	edges [][]int
	err   error
}

// NewGraph starts an empty graph.
func NewGraph() *GraphBuilder {
	return &GraphBuilder{}
}

// Node adds a and returns its node number, counted from zero.
func (g *GraphBuilder) Node(a *Action) int {
	g.nodes = append(g.nodes, a)
	g.edges = append(g.edges, nil)
	return len(g.nodes) - 1
}

// Edges makes every node in to depend on from. The first invalid edge is
// remembered and returned by Build.
func (g *GraphBuilder) Edges(from int, to ...int) *GraphBuilder {
	if g.err != nil {
		return g
	}
	if from < 0 || from >= len(g.nodes) {
		g.err = schema.NewErrorf(schema.ErrCodeValidation, "graph edge from unknown node %d", from)
		return g
	}

	seen := make(map[int]bool, len(g.edges[from])+len(to))
	for _, t := range g.edges[from] {
		seen[t] = true
	}
	for _, t := range to {
		switch {
		case t < 0 || t >= len(g.nodes):
			g.err = schema.NewErrorf(schema.ErrCodeValidation, "graph edge %d -> %d targets an unknown node", from, t)
		case t == from:
			g.err = schema.NewErrorf(schema.ErrCodeCycleDetected, "graph node %d depends on itself", from)
		case seen[t]:
			g.err = schema.NewErrorf(schema.ErrCodeValidation, "duplicate graph edge %d -> %d", from, t)
		}
		if g.err != nil {
			return g
		}
		seen[t] = true
		g.edges[from] = append(g.edges[from], t)
	}
	return g
}

// Build sorts the nodes topologically and returns the Graph action. The
// nodes become its children in that order.
func (g *GraphBuilder) Build() (*Action, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph has no nodes")
	}
	for i, n := range g.nodes {
		if n == nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "graph node %d is nil", i)
		}
	}

	sorted, err := sortDAG(len(g.nodes), g.edges)
	if err != nil {
		return nil, err
	}
	children := make([]*Action, len(sorted))
	for newID, oldID := range sorted {
		children[newID] = g.nodes[oldID]
	}
	return &Action{kind: KindGraph, children: children, graph: newDAG(sorted, g.edges)}, nil
}

// GraphEdges returns the successors of each Graph child, indexed like
// Children. It is nil for other kinds.
func (a *Action) GraphEdges() [][]int {
	if a.graph == nil {
		return nil
	}
	return a.graph.edges
}

// GraphPredecessors returns the children the i-th Graph child depends on.
func (a *Action) GraphPredecessors(i int) []int {
	if a.graph == nil {
		return nil
	}
	return a.graph.predecessors(i)
}

// GraphLevels groups Graph children by dependency depth.
func (a *Action) GraphLevels() [][]int {
	if a.graph == nil {
		return nil
	}
	return a.graph.levels
}

// runGraph starts every node whose predecessors have all succeeded, admitting
// nodes through the gate. Successors of a failed node never start. When no
// node is left running, the failure latest in topological order is the
// result.
func (a *Action) runGraph(ctx context.Context) error {
	d := a.graph
	remaining := append([]int(nil), d.indegree...)
	results := make([]error, len(a.children))
	finished := make(chan caseResult, len(a.children))
	running, started := 0, 0

	start := func(i int) {
		started++
		if err := a.gate.Acquire(ctx, 1); err != nil {
			results[i] = err
			return
		}
		child := a.children[i]
		h, err := a.rt.Scheduler.Spawn(ctx, func(ctx context.Context) error {
			defer a.gate.Release(1)
			return child.Run(ctx)
		})
		if err != nil {
			a.gate.Release(1)
			results[i] = schema.NewErrorf(schema.ErrCodeSchedulerUnavailable,
				"spawn node %d of %s", i, a.id).WithCause(err)
			return
		}
		running++
		go func() {
			<-h.Done()
			finished <- caseResult{index: i, err: h.Err()}
		}()
	}

	for i, deg := range remaining {
		if deg == 0 {
			start(i)
		}
	}
	for running > 0 {
		r := <-finished
		running--
		results[r.index] = r.err
		if r.err != nil {
			continue
		}
		for _, to := range d.edges[r.index] {
			remaining[to]--
			if remaining[to] == 0 {
				start(to)
			}
		}
	}

	if skipped := len(a.children) - started; skipped > 0 {
		a.rt.logger().DebugContext(ctx, "graph nodes skipped after a failure", slog.Int("skipped", skipped))
	}
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] != nil {
			return results[i]
		}
	}
	return nil
}
