package program

import (
	"log/slog"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/internal/config"
	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

// Builder assembles a Program. Building is single-threaded; the builder must
// not be shared between goroutines.
type Builder struct {
	name      string
	cfg       config.DesignConfig
	body      *actions.Action
	shutdown  *actions.Action
	scheduler scheduler.Scheduler
	observer  actions.Observer
	logger    *slog.Logger
	teardown  []func() error
}

// NewBuilder starts a program named name with the default DesignConfig.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, cfg: config.DefaultDesignConfig()}
}

// WithConfig replaces the DesignConfig.
func (b *Builder) WithConfig(cfg config.DesignConfig) *Builder {
	b.cfg = cfg
	return b
}

// WithBody sets the root action run on every iteration.
func (b *Builder) WithBody(a *actions.Action) *Builder {
	b.body = a
	return b
}

// WithShutdownNotification sets the Sync action run once at shutdown.
func (b *Builder) WithShutdownNotification(a *actions.Action) *Builder {
	b.shutdown = a
	return b
}

// WithScheduler sets the scheduler. Without one the program gets its own
// Executor.
func (b *Builder) WithScheduler(s scheduler.Scheduler) *Builder {
	b.scheduler = s
	return b
}

// WithObserver receives action telemetry. If it also implements
// IterationObserver it receives iteration telemetry too.
func (b *Builder) WithObserver(o actions.Observer) *Builder {
	b.observer = o
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithTeardown registers fn to run after the shutdown action, for example to
// close the event provider the program's actions use.
func (b *Builder) WithTeardown(fn func() error) *Builder {
	b.teardown = append(b.teardown, fn)
	return b
}

// Build registers every action, freezes the database and binds the tree.
// Nothing is returned on failure; a program is never partially built.
func (b *Builder) Build() (*Program, error) {
	if b.name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "program name is required")
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.body == nil {
		return nil, schema.NewErrorf(schema.ErrCodeMissingBody, "program %q has no body", b.name)
	}
	if b.shutdown != nil && b.shutdown.Kind() != actions.KindSync {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"shutdown notification of %q must be a sync action, got %s", b.name, b.shutdown.Kind())
	}

	db := NewDatabase(b.cfg.DBParams.RegistrationCapacity)
	reg := newRegistrar(db)
	if err := reg.register(b.body); err != nil {
		return nil, err
	}
	if b.shutdown != nil {
		if err := reg.register(b.shutdown); err != nil {
			return nil, err
		}
	}
	db.Freeze()

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	sched := b.scheduler
	if sched == nil {
		sched = scheduler.NewExecutor(logger)
	}

	rt := &actions.Runtime{
		Scheduler:     sched,
		MaxConcurrent: b.cfg.MaxConcurrentActionExecutions,
		Observer:      b.observer,
		Logger:        logger,
	}
	if err := actions.Bind(b.body, rt); err != nil {
		return nil, err
	}
	if b.shutdown != nil {
		if err := actions.Bind(b.shutdown, rt); err != nil {
			return nil, err
		}
	}

	p := &Program{
		name:      b.name,
		cfg:       b.cfg,
		body:      b.body,
		shutdown:  b.shutdown,
		db:        db,
		scheduler: sched,
		logger:    logger.With(slog.String("program", b.name)),
		lifecycle: newLifecycle(),
		teardown:  b.teardown,
	}
	if obs, ok := b.observer.(IterationObserver); ok {
		p.iterObserver = obs
	}
	return p, nil
}

// registrar assigns final NamedIDs and fills the database.
type registrar struct {
	db    *Database
	next  map[string]int
	owned map[*actions.Action]struct{}
}

func newRegistrar(db *Database) *registrar {
	return &registrar{
		db:    db,
		next:  make(map[string]int),
		owned: make(map[*actions.Action]struct{}),
	}
}

func (r *registrar) register(root *actions.Action) error {
	parents := make(map[int]actions.NamedID)

	return root.Walk(func(a *actions.Action, depth int) error {
		if _, dup := r.owned[a]; dup {
			return schema.NewErrorf(schema.ErrCodeAlreadyRegistered,
				"action %s is owned by more than one parent", a.ID())
		}
		r.owned[a] = struct{}{}

		id := a.ID()
		if !a.Pinned() {
			id = r.assign(a)
			a.SetID(id)
		}

		meta := Metadata{Kind: a.Kind(), Depth: depth, Action: a}
		if depth > 0 {
			meta.Parent = parents[depth-1]
		}
		if _, err := r.db.Register(id, meta); err != nil {
			return err
		}
		parents[depth] = id
		return nil
	})
}

// assign picks the lowest free index for the action's name, defaulting the
// name to the action kind.
func (r *registrar) assign(a *actions.Action) actions.NamedID {
	name := a.ID().Name
	if name == "" {
		name = string(a.Kind())
	}
	for {
		id := actions.NamedID{Name: name, Index: r.next[name]}
		r.next[name]++
		if _, taken := r.db.Lookup(id); !taken {
			return id
		}
	}
}
