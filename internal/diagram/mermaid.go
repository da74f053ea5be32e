package diagram

import (
	"fmt"
	"strings"
)

const startID = "__start__"

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(&Node{ID: startID, Label: startLabel(model), Kind: NodeKindStart})))

	var classes []string
	render := func(root *Node) {
		root.Walk(func(n *Node, _ int) {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(n)))
			if n.Status != nil {
				classes = append(classes, fmt.Sprintf("    class %s observed\n", mermaidSafeID(n.ID)))
			}
		})
		root.Walk(func(n *Node, _ int) {
			for i, c := range n.Children {
				b.WriteString(mermaidEdge(n.ID, c.ID, n.EdgeLabels[i], false))
			}
		})
	}

	if model.Root != nil {
		render(model.Root)
		b.WriteString(mermaidEdge(startID, model.Root.ID, "", false))
	}
	if model.Shutdown != nil {
		render(model.Shutdown)
		b.WriteString(mermaidEdge(startID, model.Shutdown.ID, "shutdown", true))
	}

	b.WriteString("\n")
	b.WriteString("    classDef observed fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	for _, c := range classes {
		b.WriteString(c)
	}

	return b.String()
}

func startLabel(model *DiagramModel) string {
	if model.Title == "" {
		return "start"
	}
	return model.Title
}

func mermaidEdge(from, to, label string, dotted bool) string {
	arrow := "-->"
	if dotted {
		arrow = "-.->"
	}
	if label != "" {
		label = fmt.Sprintf("|%s|", label)
	}
	return fmt.Sprintf("    %s %s%s %s\n", mermaidSafeID(from), arrow, label, mermaidSafeID(to))
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := node.Label
	if node.Status != nil {
		label += statusSuffix(node.Status)
	}

	switch node.Kind {
	case NodeKindIfElse:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindCatch:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindSync:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindSequence, NodeKindConcurrency, NodeKindGraph:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindSelect:
		return fmt.Sprintf("%s[/%q/]", id, label)
	case NodeKindTrigger:
		return fmt.Sprintf("%s>%q]", id, label)
	case NodeKindStart:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // invoke
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", "#", "_")
	return r.Replace(id)
}

func statusSuffix(s *StatusOverlay) string {
	switch {
	case s.Fires > 0:
		return fmt.Sprintf(" fires=%d", s.Fires)
	case s.Suppressed > 0:
		return fmt.Sprintf(" suppressed=%d", s.Suppressed)
	}
	return ""
}
