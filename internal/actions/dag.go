package actions

import (
	"sort"

	"github.com/rendis/taskchain/pkg/schema"
)

// dag is the dependency structure of a Graph action. Nodes are kept in
// topological order, so every edge points to a higher index.
type dag struct {
	edges    [][]int // node -> successors
	indegree []int
	levels   [][]int
}

// sortDAG orders n nodes with Kahn's algorithm. Roots and successors are
// queued by ascending node number so the order is deterministic. The result
// lists old node numbers in their new order.
func sortDAG(n int, edges [][]int) ([]int, error) {
	inDegree := make([]int, n)
	for _, succ := range edges {
		for _, to := range succ {
			inDegree[to]++
		}
	}

	queue := make([]int, 0, n)
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	sorted := make([]int, 0, n)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		succ := append([]int(nil), edges[node]...)
		sort.Ints(succ)
		for _, to := range succ {
			inDegree[to]--
			if inDegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	if len(sorted) != n {
		return nil, schema.NewErrorf(schema.ErrCodeCycleDetected,
			"graph contains a cycle through %d of its %d nodes", n-len(sorted), n)
	}
	return sorted, nil
}

// newDAG renumbers edges to the sorted order and precomputes in-degrees and
// levels.
func newDAG(sorted []int, edges [][]int) *dag {
	pos := make([]int, len(sorted))
	for newID, oldID := range sorted {
		pos[oldID] = newID
	}

	d := &dag{
		edges:    make([][]int, len(sorted)),
		indegree: make([]int, len(sorted)),
	}
	for newID, oldID := range sorted {
		for _, to := range edges[oldID] {
			d.edges[newID] = append(d.edges[newID], pos[to])
			d.indegree[pos[to]]++
		}
		sort.Ints(d.edges[newID])
	}
	d.levels = computeLevels(d)
	return d
}

// computeLevels groups nodes by depth. A node's level is one more than the
// deepest of its predecessors; nodes on the same level may run together.
func computeLevels(d *dag) [][]int {
	depth := make([]int, len(d.edges))
	maxLevel := 0
	// Predecessors have lower indexes, so depth[from] is final here.
	for from, succ := range d.edges {
		for _, to := range succ {
			if depth[from]+1 > depth[to] {
				depth[to] = depth[from] + 1
			}
		}
		if depth[from] > maxLevel {
			maxLevel = depth[from]
		}
	}

	levels := make([][]int, maxLevel+1)
	for node, lvl := range depth {
		levels[lvl] = append(levels[lvl], node)
	}
	return levels
}

func (d *dag) predecessors(node int) []int {
	var out []int
	for from, succ := range d.edges {
		for _, to := range succ {
			if to == node {
				out = append(out, from)
			}
		}
	}
	return out
}
