package barrier

import (
	"sync"
	"testing"
	"time"

	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrier_AllArriveBeforeTimeout(t *testing.T) {
	b := New(3)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		n, ok := b.GetNotifier()
		require.True(t, ok)
		wg.Add(1)
		go func(delay time.Duration) {
			defer wg.Done()
			time.Sleep(delay)
			assert.NoError(t, n.Ready())
		}(time.Duration(i*10) * time.Millisecond)
	}

	require.NoError(t, b.WaitForAll(2*time.Second))
	wg.Wait()
	assert.Equal(t, 3, b.Arrived())
}

func TestBarrier_TimeoutWhenArrivalsMissing(t *testing.T) {
	b := New(2)
	n, ok := b.GetNotifier()
	require.True(t, ok)
	require.NoError(t, n.Ready())

	timeout := 80 * time.Millisecond
	start := time.Now()
	err := b.WaitForAll(timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeBarrierTimeout))
	assert.Contains(t, err.Error(), "failed to join tasks after")
	assert.Contains(t, err.Error(), "seconds")
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)

	var te *schema.TaskchainError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Details["arrived"])
	assert.Equal(t, 2, te.Details["expected"])
}

func TestBarrier_TokensExhausted(t *testing.T) {
	b := New(2)
	_, ok := b.GetNotifier()
	require.True(t, ok)
	_, ok = b.GetNotifier()
	require.True(t, ok)

	n, ok := b.GetNotifier()
	assert.False(t, ok)
	assert.Nil(t, n)
}

func TestBarrier_DoubleReadyIsRejected(t *testing.T) {
	b := New(2)
	n, _ := b.GetNotifier()

	require.NoError(t, n.Ready())
	err := n.Ready()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidTransition))
	assert.Equal(t, 1, b.Arrived(), "second signal must not be counted")

	// The barrier is still one arrival short.
	assert.Error(t, b.WaitForAll(20*time.Millisecond))
}

func TestBarrier_NonPositiveCapacity(t *testing.T) {
	b := New(0)
	assert.Equal(t, 1, b.Capacity())
}

func TestExecutionBarrier(t *testing.T) {
	eb := NewExecutionBarrier()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = eb.Notifier().Ready()
	}()
	require.NoError(t, eb.WaitForNotification(time.Second))

	idle := NewExecutionBarrier()
	err := idle.WaitForNotification(10 * time.Millisecond)
	assert.True(t, schema.IsCode(err, schema.ErrCodeBarrierTimeout))
}
