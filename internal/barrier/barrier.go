// Package barrier provides a fixed-capacity rendezvous that lets a
// synchronous caller wait for asynchronous work without polling.
package barrier

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rendis/taskchain/pkg/schema"
)

// ThreadWaitBarrier expects exactly capacity arrivals. It hands out at most
// capacity ReadyNotifier tokens; WaitForAll returns once each has signalled.
type ThreadWaitBarrier struct {
	capacity int

	mu      sync.Mutex
	issued  int
	arrived int
	done    chan struct{}
}

// New creates a barrier expecting capacity arrivals. A capacity below one is
// treated as one.
func New(capacity int) *ThreadWaitBarrier {
	if capacity < 1 {
		capacity = 1
	}
	return &ThreadWaitBarrier{
		capacity: capacity,
		done:     make(chan struct{}),
	}
}

// Capacity returns the number of arrivals the barrier waits for.
func (b *ThreadWaitBarrier) Capacity() int {
	return b.capacity
}

// GetNotifier issues the next token. It returns false once capacity tokens
// have been issued.
func (b *ThreadWaitBarrier) GetNotifier() (*ReadyNotifier, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.issued >= b.capacity {
		return nil, false
	}
	b.issued++
	return &ReadyNotifier{barrier: b}, true
}

func (b *ThreadWaitBarrier) arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.arrived++
	if b.arrived == b.capacity {
		close(b.done)
	}
}

// Arrived returns how many tokens have signalled so far.
func (b *ThreadWaitBarrier) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

// WaitForAll blocks until capacity tokens have signalled or timeout elapses.
// On expiry it returns a BARRIER_TIMEOUT error carrying the elapsed seconds.
func (b *ThreadWaitBarrier) WaitForAll(timeout time.Duration) error {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.done:
		return nil
	case <-timer.C:
		// An arrival racing the timer still counts.
		select {
		case <-b.done:
			return nil
		default:
		}
		elapsed := time.Since(start)
		return schema.NewErrorf(schema.ErrCodeBarrierTimeout,
			"failed to join tasks after %.2f seconds", elapsed.Seconds()).
			WithDetails(map[string]any{
				"elapsed_seconds": elapsed.Seconds(),
				"arrived":         b.Arrived(),
				"expected":        b.capacity,
			})
	}
}

// ReadyNotifier is a single-use arrival token.
type ReadyNotifier struct {
	barrier *ThreadWaitBarrier
	fired   atomic.Bool
}

// Ready signals the arrival. A second call on the same token returns an
// INVALID_TRANSITION error and is not counted.
func (n *ReadyNotifier) Ready() error {
	if !n.fired.CompareAndSwap(false, true) {
		return schema.NewError(schema.ErrCodeInvalidTransition, "ready notifier already signalled")
	}
	n.barrier.arrive()
	return nil
}
