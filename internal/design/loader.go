package design

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/expressions"
	"github.com/rendis/taskchain/pkg/schema"
)

// Parse decodes a YAML or JSON program document. Unknown fields are rejected.
func Parse(data []byte) (*schema.ProgramDocument, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc schema.ProgramDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, schema.NewError(schema.ErrCodeValidation, "program document is empty")
		}
		return nil, schema.NewError(schema.ErrCodeValidation, "parse program document").WithCause(err)
	}
	return &doc, nil
}

// Load reads, parses and validates the document at path.
func Load(path string) (*schema.ProgramDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read %s", path).WithCause(err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc).ToError(); err != nil {
		return nil, err
	}
	return doc, nil
}

var (
	evalOnce  sync.Once
	evaluator *expressions.Evaluator
	evalErr   error
)

func sharedEvaluator() (*expressions.Evaluator, error) {
	evalOnce.Do(func() {
		evaluator, evalErr = expressions.NewEvaluator()
	})
	return evaluator, evalErr
}

// Validate runs the schema check and, if it passes, the structural checks
// that JSON Schema cannot express.
func Validate(doc *schema.ProgramDocument) *schema.ValidationResult {
	if doc == nil {
		res := &schema.ValidationResult{}
		res.Addf("", schema.ErrCodeValidation, "program document is nil")
		return res
	}

	res := checkSchema(doc)
	if !res.Valid() {
		return res
	}

	sources := make(map[string]string, len(doc.Events))
	for i, ev := range doc.Events {
		if _, dup := sources[ev.Tag]; dup {
			res.Addf(fmt.Sprintf("/events/%d", i), schema.ErrCodeAlreadyRegistered, "tag %q bound more than once", ev.Tag)
			continue
		}
		sources[ev.Tag] = ev.Source
	}

	w := &walker{res: res, sources: sources, pinned: make(map[string]string)}
	w.walk("/body", doc.Body)
	if doc.Shutdown != nil {
		w.walk("/shutdown", doc.Shutdown)
	}
	return res
}

type walker struct {
	res     *schema.ValidationResult
	sources map[string]string
	pinned  map[string]string
}

func (w *walker) walk(path string, n *schema.ActionNode) {
	w.visit(path, n, false)
}

func (w *walker) visit(path string, n *schema.ActionNode, inGraph bool) {
	if n == nil {
		return
	}

	if strings.Contains(n.ID, "#") {
		if first, dup := w.pinned[n.ID]; dup {
			w.res.Addf(path, schema.ErrCodeAlreadyRegistered, "id %q already used at %s", n.ID, first)
		} else {
			w.pinned[n.ID] = path
		}
	}

	if n.MaxConcurrent != 0 && len(n.Concurrency) == 0 && len(n.Graph) == 0 {
		w.res.Addf(path+"/max_concurrent", schema.ErrCodeValidation, "max_concurrent applies to concurrency and graph only")
	}
	if len(n.After) > 0 && !inGraph {
		w.res.Addf(path+"/after", schema.ErrCodeValidation, "after is only allowed on graph nodes")
	}

	if n.Sync != nil && n.Sync.Notify != "" && isTimerSource(w.sources[n.Sync.Notify]) {
		w.res.Addf(path+"/sync", schema.ErrCodeValidation, "tag %q is a timer and cannot be notified", n.Sync.Notify)
	}

	if n.If != "" {
		ev, err := sharedEvaluator()
		if err == nil {
			err = ev.Check(n.If)
		}
		if err != nil {
			w.res.Addf(path+"/if", schema.ErrCodeValidation, "%s", err.Error())
		}
	}

	if len(n.Graph) > 0 {
		w.graph(path+"/graph", n.Graph)
	}

	for i, c := range n.Sequence {
		w.visit(fmt.Sprintf("%s/sequence/%d", path, i), c, false)
	}
	for i, c := range n.Concurrency {
		w.visit(fmt.Sprintf("%s/concurrency/%d", path, i), c, false)
	}
	for i, c := range n.Select {
		w.visit(fmt.Sprintf("%s/select/%d", path, i), c, false)
	}
	for i, c := range n.Graph {
		w.visit(fmt.Sprintf("%s/graph/%d", path, i), c, true)
	}
	w.visit(path+"/trigger", n.Trigger, false)
	w.visit(path+"/catch", n.Catch, false)
	w.visit(path+"/then", n.Then, false)
	w.visit(path+"/else", n.Else, false)
}

// graph checks that every after entry names a sibling and that the
// dependencies are acyclic.
func (w *walker) graph(path string, nodes []*schema.ActionNode) {
	index, ok := graphIndex(path, nodes, w.res)

	noop := func(context.Context) error { return nil }
	g := actions.NewGraph()
	for range nodes {
		g.Node(actions.Invoke("noop", noop))
	}
	for i, n := range nodes {
		if n == nil {
			continue
		}
		for j, dep := range n.After {
			from, found := index[dep]
			if !found {
				w.res.Addf(fmt.Sprintf("%s/%d/after/%d", path, i, j), schema.ErrCodeValidation, "graph has no node with id %q", dep)
				ok = false
				continue
			}
			g.Edges(from, i)
		}
	}
	if !ok {
		return
	}
	if _, err := g.Build(); err != nil {
		var te *schema.TaskchainError
		if errors.As(err, &te) {
			w.res.Addf(path, te.Code, "%s", te.Message)
			return
		}
		w.res.Addf(path, schema.ErrCodeValidation, "%s", err.Error())
	}
}

// graphIndex maps the ids of graph nodes to their positions. It reports
// false when an id repeats.
func graphIndex(path string, nodes []*schema.ActionNode, res *schema.ValidationResult) (map[string]int, bool) {
	index := make(map[string]int, len(nodes))
	ok := true
	for i, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if first, dup := index[n.ID]; dup {
			if res != nil {
				res.Addf(fmt.Sprintf("%s/%d", path, i), schema.ErrCodeAlreadyRegistered, "id %q already used by graph node %d", n.ID, first)
			}
			ok = false
			continue
		}
		index[n.ID] = i
	}
	return index, ok
}

func isTimerSource(source string) bool {
	return strings.HasPrefix(source, "timer:") || strings.HasPrefix(source, "cron:")
}
