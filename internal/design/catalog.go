// Package design turns declarative program documents into runnable programs.
package design

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/taskchain/internal/actions"
	"github.com/rendis/taskchain/pkg/schema"
)

// Factory builds an invoke function from the argument part of a reference.
// For "sleep:50ms" the factory registered as "sleep" receives "50ms".
type Factory func(arg string) (actions.InvokeFunc, error)

// Catalog is a thread-safe set of named invoke functions that program
// documents refer to.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// Register adds a function that takes no argument. Returns error on duplicate name.
func (c *Catalog) Register(name string, fn actions.InvokeFunc) error {
	if fn == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invoke %q is nil", name)
	}
	return c.RegisterFactory(name, func(arg string) (actions.InvokeFunc, error) {
		if arg != "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invoke %q takes no argument, got %q", name, arg)
		}
		return fn, nil
	})
}

// RegisterFactory adds a parameterised function.
func (c *Catalog) RegisterFactory(name string, f Factory) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "invoke name is empty")
	}
	if strings.Contains(name, ":") {
		return schema.NewErrorf(schema.ErrCodeValidation, "invoke name %q must not contain ':'", name)
	}
	if f == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "factory for %q is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[name]; exists {
		return schema.NewErrorf(schema.ErrCodeAlreadyRegistered, "invoke %q already registered", name)
	}
	c.factories[name] = f
	return nil
}

// Resolve builds the function for a reference of the form "name" or
// "name:arg".
func (c *Catalog) Resolve(ref string) (actions.InvokeFunc, error) {
	name, arg, _ := strings.Cut(ref, ":")

	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "invoke %q not registered", name)
	}
	return f(arg)
}

// Has checks if a name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[name]
	return ok
}

// Count returns the number of registered names.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.factories)
}

// List returns the registered names, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterPlaceholders registers a no-op for every invoke that doc refers
// to and c lacks, so the document compiles for inspection.
func RegisterPlaceholders(c *Catalog, doc *schema.ProgramDocument) {
	noop := func(string) (actions.InvokeFunc, error) {
		return func(context.Context) error { return nil }, nil
	}
	var visit func(n *schema.ActionNode)
	visit = func(n *schema.ActionNode) {
		if n == nil {
			return
		}
		if n.Invoke != "" {
			name, _, _ := strings.Cut(n.Invoke, ":")
			if !c.Has(name) {
				_ = c.RegisterFactory(name, noop)
			}
		}
		for _, child := range n.Sequence {
			visit(child)
		}
		for _, child := range n.Concurrency {
			visit(child)
		}
		for _, child := range n.Select {
			visit(child)
		}
		for _, child := range n.Graph {
			visit(child)
		}
		for _, child := range []*schema.ActionNode{n.Trigger, n.Catch, n.Then, n.Else} {
			visit(child)
		}
	}
	visit(doc.Body)
	visit(doc.Shutdown)
}
