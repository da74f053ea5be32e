// Package diagram renders action trees as Mermaid flowcharts and text trees.
package diagram

// NodeKind classifies a diagram node by the action it draws.
type NodeKind string

const (
	NodeKindInvoke      NodeKind = "invoke"
	NodeKindSequence    NodeKind = "sequence"
	NodeKindConcurrency NodeKind = "concurrency"
	NodeKindSelect      NodeKind = "select"
	NodeKindGraph       NodeKind = "graph"
	NodeKindSync        NodeKind = "sync"
	NodeKindTrigger     NodeKind = "trigger"
	NodeKindCatch       NodeKind = "catch"
	NodeKindIfElse      NodeKind = "if_else"
	NodeKindStart       NodeKind = "start"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Root     *Node
	Shutdown *Node
}

// Node represents one action.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Status   *StatusOverlay
	Children []*Node
	// EdgeLabels name the edge to each child; empty entries draw unlabelled.
	EdgeLabels []string
}

// StatusOverlay carries runtime counters for a node.
type StatusOverlay struct {
	Fires      int64
	Suppressed int
}

// Walk visits n and its descendants depth first.
func (n *Node) Walk(fn func(n *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(n *Node, depth int), depth int) {
	if n == nil {
		return
	}
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}
