package scheduler

import (
	"context"
	"sync"

	"github.com/rendis/taskchain/pkg/schema"
)

// Mock runs each task inline on the calling goroutine and counts spawns and
// respawns. Concurrency branches therefore run one after another, so graphs
// whose branches rendezvous with each other need the Executor instead.
type Mock struct {
	mu       sync.Mutex
	spawns   int
	respawns int

	// FailAfter, when positive, makes every submission after the first
	// FailAfter ones fail with SCHEDULER_UNAVAILABLE.
	FailAfter int
}

// NewMock creates a Mock with no failure injection.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) admit(respawn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAfter > 0 && m.spawns+m.respawns >= m.FailAfter {
		return schema.NewError(schema.ErrCodeSchedulerUnavailable, "mock scheduler refused task")
	}
	if respawn {
		m.respawns++
	} else {
		m.spawns++
	}
	return nil
}

// Spawn runs task to completion before returning.
func (m *Mock) Spawn(ctx context.Context, task Task) (*Handle, error) {
	if task == nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "spawn of a nil task")
	}
	if err := m.admit(false); err != nil {
		return nil, err
	}
	h := newHandle(task, 0)
	h.finish(task(ctx))
	return h, nil
}

// Respawn runs the handle's task again to completion before returning.
func (m *Mock) Respawn(ctx context.Context, h *Handle) (*Handle, error) {
	if err := checkRespawnable(h); err != nil {
		return nil, err
	}
	if err := m.admit(true); err != nil {
		return nil, err
	}
	next := newHandle(h.task, h.respawns+1)
	next.finish(next.task(ctx))
	return next, nil
}

// Spawns returns the number of Spawn calls admitted.
func (m *Mock) Spawns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spawns
}

// RespawnCount returns the number of Respawn calls admitted.
func (m *Mock) RespawnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.respawns
}
