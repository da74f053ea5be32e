package diagram

import (
	"fmt"
	"strings"
)

// RenderASCII renders a DiagramModel as an indented text tree.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n", model.Title))
	}
	if model.Root != nil {
		renderTree(&b, model.Root, "", "", "")
	}
	if model.Shutdown != nil {
		b.WriteString("--- shutdown ---\n")
		renderTree(&b, model.Shutdown, "", "", "")
	}
	return b.String()
}

func renderTree(b *strings.Builder, n *Node, prefix, branch, edge string) {
	line := fmt.Sprintf("%s [%s]", n.Label, n.Kind)
	if edge != "" {
		line = edge + ": " + line
	}
	if n.Status != nil {
		line += statusSuffix(n.Status)
	}
	b.WriteString(prefix + branch + line + "\n")

	childPrefix := prefix
	switch branch {
	case "├── ":
		childPrefix += "│   "
	case "└── ":
		childPrefix += "    "
	}

	for i, c := range n.Children {
		next := "├── "
		if i == len(n.Children)-1 {
			next = "└── "
		}
		renderTree(b, c, childPrefix, next, n.EdgeLabels[i])
	}
}
