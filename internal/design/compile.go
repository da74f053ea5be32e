package design

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/config"
	"github.com/rendis/taskchain/internal/events"
	"github.com/rendis/taskchain/internal/expressions"
	"github.com/rendis/taskchain/internal/program"
	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// Compiler builds programs from documents. Programs compiled by the same
// Compiler share its event providers, so a tag notified in one document can
// be listened to in another.
type Compiler struct {
	catalog  *Catalog
	local    events.Provider
	ipc      events.Provider
	sched    scheduler.Scheduler
	observer actions.Observer
	logger   *slog.Logger
	base     config.DesignConfig

	// notifiers holds one notifier per source and tag. The program that
	// acquired it first closes it on shutdown.
	mu        sync.Mutex
	notifiers map[string]events.Notifier
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithLocalProvider replaces the in-memory provider used for "local" tags.
func WithLocalProvider(p events.Provider) CompilerOption {
	return func(c *Compiler) { c.local = p }
}

// WithIPCProvider sets the provider used for "ipc" tags.
func WithIPCProvider(p events.Provider) CompilerOption {
	return func(c *Compiler) { c.ipc = p }
}

// WithScheduler sets the scheduler every compiled program runs on.
func WithScheduler(s scheduler.Scheduler) CompilerOption {
	return func(c *Compiler) { c.sched = s }
}

// WithObserver sets the action observer of every compiled program.
func WithObserver(o actions.Observer) CompilerOption {
	return func(c *Compiler) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = l }
}

// WithBaseConfig sets the configuration that document config blocks overlay.
func WithBaseConfig(cfg config.DesignConfig) CompilerOption {
	return func(c *Compiler) { c.base = cfg }
}

// NewCompiler creates a Compiler resolving invokes in catalog. Without
// options "local" tags use a fresh LocalProvider and "ipc" tags are
// unavailable.
func NewCompiler(catalog *Catalog, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		catalog:   catalog,
		logger:    slog.Default(),
		base:      config.DefaultDesignConfig(),
		notifiers: make(map[string]events.Notifier),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.local == nil {
		c.local = events.NewLocalProvider()
	}
	if c.ipc == nil {
		c.ipc = events.NewStubProvider(c.logger)
	}
	return c
}

// unit is the per-document compile state.
type unit struct {
	doc     *schema.ProgramDocument
	sources map[string]string
	eval    *expressions.Evaluator
	closers []func() error
}

// Compile validates doc and builds its program. Event endpoints acquired for
// the program are released by its Shutdown.
func (c *Compiler) Compile(doc *schema.ProgramDocument) (*program.Program, error) {
	if err := Validate(doc).ToError(); err != nil {
		return nil, err
	}
	eval, err := sharedEvaluator()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "create expression evaluator").WithCause(err)
	}

	u := &unit{doc: doc, sources: make(map[string]string, len(doc.Events)), eval: eval}
	for _, ev := range doc.Events {
		u.sources[ev.Tag] = ev.Source
	}

	body, err := c.node(u, doc.Body)
	if err != nil {
		return nil, u.abort(err)
	}

	b := program.NewBuilder(doc.Name).
		WithConfig(c.base.Merge(doc.Config)).
		WithBody(body).
		WithLogger(c.logger).
		WithTeardown(u.release)
	if c.sched != nil {
		b = b.WithScheduler(c.sched)
	}
	if c.observer != nil {
		b = b.WithObserver(c.observer)
	}
	if doc.Shutdown != nil {
		sd, err := c.node(u, doc.Shutdown)
		if err != nil {
			return nil, u.abort(err)
		}
		b = b.WithShutdownNotification(sd)
	}

	p, err := b.Build()
	if err != nil {
		return nil, u.abort(err)
	}
	c.logger.Debug("program compiled",
		slog.String("program", doc.Name),
		slog.Int("actions", p.Database().Len()))
	return p, nil
}

func (u *unit) release() error {
	var errs []error
	for _, fn := range u.closers {
		if err := fn(); err != nil && !events.IsClosed(err) {
			errs = append(errs, err)
		}
	}
	u.closers = nil
	return errors.Join(errs...)
}

func (u *unit) abort(err error) error {
	_ = u.release()
	return err
}

func (c *Compiler) node(u *unit, n *schema.ActionNode) (*actions.Action, error) {
	a, err := c.build(u, n)
	if err != nil {
		return nil, err
	}
	if n.ID == "" {
		return a, nil
	}
	if name, idx, ok := strings.Cut(n.ID, "#"); ok {
		i, err := strconv.Atoi(idx)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "bad id %q", n.ID).WithCause(err)
		}
		return a.WithID(actions.NamedID{Name: name, Index: i}), nil
	}
	return a.Named(n.ID), nil
}

func (c *Compiler) nodes(u *unit, ns []*schema.ActionNode) ([]*actions.Action, error) {
	out := make([]*actions.Action, len(ns))
	for i, n := range ns {
		a, err := c.node(u, n)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func (c *Compiler) build(u *unit, n *schema.ActionNode) (*actions.Action, error) {
	switch {
	case n.Invoke != "":
		fn, err := c.catalog.Resolve(n.Invoke)
		if err != nil {
			return nil, err
		}
		name, _, _ := strings.Cut(n.Invoke, ":")
		return actions.Invoke(name, fn), nil

	case len(n.Sequence) > 0:
		children, err := c.nodes(u, n.Sequence)
		if err != nil {
			return nil, err
		}
		return actions.Sequence(children...), nil

	case len(n.Concurrency) > 0:
		children, err := c.nodes(u, n.Concurrency)
		if err != nil {
			return nil, err
		}
		return actions.Concurrency(children...).WithMaxConcurrent(n.MaxConcurrent), nil

	case len(n.Select) > 0:
		cases, err := c.nodes(u, n.Select)
		if err != nil {
			return nil, err
		}
		return actions.Select(cases...), nil

	case len(n.Graph) > 0:
		return c.graph(u, n)

	case n.Sync != nil:
		if n.Sync.Notify != "" {
			notifier, err := c.notifier(u, n.Sync.Notify)
			if err != nil {
				return nil, err
			}
			return actions.SyncNotifyOn(n.Sync.Notify, notifier, n.Sync.Value), nil
		}
		listener, err := c.listener(u, n.Sync.Listen)
		if err != nil {
			return nil, err
		}
		return actions.SyncListenOn(n.Sync.Listen, listener), nil

	case n.Trigger != nil:
		listener, err := c.listener(u, n.On)
		if err != nil {
			return nil, err
		}
		child, err := c.node(u, n.Trigger)
		if err != nil {
			return nil, err
		}
		return actions.Trigger(listener, child), nil

	case n.Catch != nil:
		child, err := c.node(u, n.Catch)
		if err != nil {
			return nil, err
		}
		return actions.Catch(child, actions.WithFilter(parseFilter(n.Filter))), nil

	case n.If != "":
		cond, err := u.eval.Condition(n.If)
		if err != nil {
			return nil, err
		}
		then, err := c.node(u, n.Then)
		if err != nil {
			return nil, err
		}
		var els *actions.Action
		if n.Else != nil {
			if els, err = c.node(u, n.Else); err != nil {
				return nil, err
			}
		}
		return actions.IfElse(cond, then, els), nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "action node %q sets no action", n.ID)
}

// graph builds a Graph action whose edges come from the after lists of its
// nodes.
func (c *Compiler) graph(u *unit, n *schema.ActionNode) (*actions.Action, error) {
	index, ok := graphIndex("", n.Graph, nil)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeAlreadyRegistered, "graph node ids repeat")
	}

	g := actions.NewGraph()
	for _, child := range n.Graph {
		a, err := c.node(u, child)
		if err != nil {
			return nil, err
		}
		g.Node(a)
	}
	for i, child := range n.Graph {
		for _, dep := range child.After {
			from, found := index[dep]
			if !found {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "graph has no node with id %q", dep)
			}
			g.Edges(from, i)
		}
	}

	a, err := g.Build()
	if err != nil {
		return nil, err
	}
	return a.WithMaxConcurrent(n.MaxConcurrent), nil
}

func parseFilter(names []string) actions.ErrorFilter {
	if len(names) == 0 {
		return actions.FilterAll
	}
	var f actions.ErrorFilter
	for _, name := range names {
		switch name {
		case "user":
			f |= actions.FilterUserErrors
		case "timeout":
			f |= actions.FilterTimeouts
		case "all":
			f |= actions.FilterAll
		}
	}
	return f
}

func (u *unit) source(tag string) string {
	if s, ok := u.sources[tag]; ok {
		return s
	}
	return "local"
}

func (c *Compiler) provider(source string) events.Provider {
	if source == "ipc" {
		return c.ipc
	}
	return c.local
}

func (c *Compiler) notifier(u *unit, tag string) (events.Notifier, error) {
	source := u.source(tag)
	if isTimerSource(source) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "tag %q is a timer and cannot be notified", tag)
	}

	key := source + "|" + tag
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.notifiers[key]; ok {
		return n, nil
	}
	n, err := c.provider(source).GetNotifier(tag)
	if err != nil {
		return nil, err
	}
	c.notifiers[key] = n
	u.closers = append(u.closers, func() error {
		c.mu.Lock()
		delete(c.notifiers, key)
		c.mu.Unlock()
		return n.Close()
	})
	return n, nil
}

func (c *Compiler) listener(u *unit, tag string) (events.Listener, error) {
	source := u.source(tag)

	var (
		l   events.Listener
		err error
	)
	switch {
	case strings.HasPrefix(source, "timer:"):
		var period time.Duration
		period, err = time.ParseDuration(strings.TrimPrefix(source, "timer:"))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "tag %q: bad timer period", tag).WithCause(err)
		}
		l, err = events.NewCycleListener(period, c.logger)
	case strings.HasPrefix(source, "cron:"):
		l, err = events.NewCronListener(strings.TrimPrefix(source, "cron:"))
	default:
		l, err = c.provider(source).GetListener(tag)
	}
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", tag, err)
	}
	u.closers = append(u.closers, l.Close)
	return l, nil
}

// Inspect compiles doc for drawing or inspection only. Unknown invokes become
// no-ops, every tag is served in memory and nothing is scheduled for real.
func Inspect(doc *schema.ProgramDocument, logger *slog.Logger) (*program.Program, error) {
	catalog := NewCatalog()
	if err := RegisterBuiltins(catalog, logger); err != nil {
		return nil, err
	}
	if doc != nil {
		RegisterPlaceholders(catalog, doc)
	}

	local := events.NewLocalProvider()
	return NewCompiler(catalog,
		WithLocalProvider(local),
		WithIPCProvider(local),
		WithScheduler(scheduler.NewMock()),
		WithLogger(logger),
	).Compile(doc)
}
