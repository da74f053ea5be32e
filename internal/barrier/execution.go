package barrier

import "time"

// ExecutionBarrier waits for a single asynchronous unit, typically one engine
// run launched from a synchronous caller.
type ExecutionBarrier struct {
	inner    *ThreadWaitBarrier
	notifier *ReadyNotifier
}

// NewExecutionBarrier creates a barrier with one pre-issued token.
func NewExecutionBarrier() *ExecutionBarrier {
	b := New(1)
	n, _ := b.GetNotifier()
	return &ExecutionBarrier{inner: b, notifier: n}
}

// Notifier returns the token to hand to the asynchronous side.
func (e *ExecutionBarrier) Notifier() *ReadyNotifier {
	return e.notifier
}

// WaitForNotification blocks until the token signals or d elapses.
func (e *ExecutionBarrier) WaitForNotification(d time.Duration) error {
	return e.inner.WaitForAll(d)
}
