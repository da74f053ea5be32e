package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/program"
	"github.com/rendis/taskchain/pkg/schema"
)

// Build converts a built program into a DiagramModel. Counters from earlier
// runs are attached as status overlays when withStatus is set.
func Build(p *program.Program, withStatus bool) (*DiagramModel, error) {
	if p == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "program is nil")
	}
	model := &DiagramModel{
		Title: p.Name(),
		Root:  buildNode(p.Body(), withStatus),
	}
	if sd := p.ShutdownNotification(); sd != nil {
		model.Shutdown = buildNode(sd, withStatus)
	}
	return model, nil
}

// BuildAction converts a bare action tree.
func BuildAction(title string, a *actions.Action) (*DiagramModel, error) {
	if a == nil {
		return nil, schema.NewError(schema.ErrCodeMissingBody, "action tree is nil")
	}
	return &DiagramModel{Title: title, Root: buildNode(a, false)}, nil
}

func buildNode(a *actions.Action, withStatus bool) *Node {
	n := &Node{
		ID:    a.ID().String(),
		Kind:  NodeKind(a.Kind()),
		Label: label(a),
	}

	for i, c := range a.Children() {
		n.Children = append(n.Children, buildNode(c, withStatus))
		n.EdgeLabels = append(n.EdgeLabels, edgeLabel(a, i))
	}

	if withStatus {
		switch a.Kind() {
		case actions.KindTrigger:
			n.Status = &StatusOverlay{Fires: a.Fires()}
		case actions.KindCatch:
			n.Status = &StatusOverlay{Suppressed: a.SuppressedCount()}
		}
	}
	return n
}

func label(a *actions.Action) string {
	id := a.ID().String()
	switch a.Kind() {
	case actions.KindConcurrency, actions.KindGraph:
		if a.MaxConcurrent() > 0 {
			return fmt.Sprintf("%s max %d", id, a.MaxConcurrent())
		}
	case actions.KindSync:
		return fmt.Sprintf("%s %s %s", id, a.SyncMode(), a.SyncTag())
	}
	return id
}

func edgeLabel(parent *actions.Action, i int) string {
	switch parent.Kind() {
	case actions.KindSequence:
		return fmt.Sprintf("%d", i+1)
	case actions.KindIfElse:
		if i == 0 {
			return "then"
		}
		return "else"
	case actions.KindTrigger:
		return "on signal"
	case actions.KindSelect:
		return fmt.Sprintf("case %d", i+1)
	case actions.KindGraph:
		preds := parent.GraphPredecessors(i)
		if len(preds) == 0 {
			return "start"
		}
		children := parent.Children()
		names := make([]string, len(preds))
		for j, p := range preds {
			names[j] = children[p].ID().String()
		}
		return "after " + strings.Join(names, ", ")
	}
	return ""
}
