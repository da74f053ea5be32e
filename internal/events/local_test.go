package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_BroadcastToAllListeners(t *testing.T) {
	p := NewLocalProvider()
	n, err := p.GetNotifier("frame")
	require.NoError(t, err)

	l1, _ := p.GetListener("frame")
	l2, _ := p.GetListener("frame")

	require.NoError(t, n.Notify(context.Background(), 7))

	for _, l := range []Listener{l1, l2} {
		v, err := l.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint32(7), v)
	}
}

func TestLocal_SingleNotifierPerTag(t *testing.T) {
	p := NewLocalProvider()
	_, err := p.GetNotifier("shutdown")
	require.NoError(t, err)

	_, err = p.GetNotifier("shutdown")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeAlreadyRegistered))

	_, err = p.GetNotifier("other")
	assert.NoError(t, err)
}

func TestLocal_ListenerOnlySeesLaterValues(t *testing.T) {
	p := NewLocalProvider()
	n, _ := p.GetNotifier("tick")
	early, _ := p.GetListener("tick")

	require.NoError(t, n.NotifySync(1))
	late, _ := p.GetListener("tick")
	require.NoError(t, n.NotifySync(2))

	v, _ := early.Next(context.Background())
	assert.Equal(t, uint32(1), v)
	v, _ = early.Next(context.Background())
	assert.Equal(t, uint32(2), v)

	v, _ = late.Next(context.Background())
	assert.Equal(t, uint32(2), v)
}

func TestLocal_NotifySyncFullBuffer(t *testing.T) {
	p := NewLocalProvider(WithBuffer(2))
	n, _ := p.GetNotifier("busy")
	_, _ = p.GetListener("busy")

	require.NoError(t, n.NotifySync(1))
	require.NoError(t, n.NotifySync(2))

	err := n.NotifySync(3)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeChannelFull))
}

func TestLocal_NotifyWaitsForSpace(t *testing.T) {
	p := NewLocalProvider(WithBuffer(1))
	n, _ := p.GetNotifier("slow")
	l, _ := p.GetListener("slow")

	require.NoError(t, n.Notify(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, n.Notify(ctx, 2), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- n.Notify(context.Background(), 3) }()

	v, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
	require.NoError(t, <-done)

	v, _ = l.Next(context.Background())
	assert.Equal(t, uint32(3), v)
}

func TestLocal_CloseDrainsThenReportsClosed(t *testing.T) {
	p := NewLocalProvider()
	n, _ := p.GetNotifier("camera")
	l, _ := p.GetListener("camera")

	for i := uint32(1); i <= 3; i++ {
		require.NoError(t, n.NotifySync(i))
	}
	require.NoError(t, n.Close())

	for i := uint32(1); i <= 3; i++ {
		v, err := l.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	_, err := l.Next(context.Background())
	require.Error(t, err)
	assert.True(t, IsClosed(err))

	assert.True(t, IsClosed(n.Notify(context.Background(), 4)))
	assert.True(t, IsClosed(n.NotifySync(4)))
}

func TestLocal_ListenerCloseUnsubscribes(t *testing.T) {
	p := NewLocalProvider(WithBuffer(1))
	n, _ := p.GetNotifier("t")
	l, _ := p.GetListener("t")

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// No subscriber left, so the buffer can never fill.
	for i := 0; i < 5; i++ {
		require.NoError(t, n.NotifySync(uint32(i)))
	}

	_, err := l.Next(context.Background())
	assert.True(t, IsClosed(err))
}

func TestLocal_NextHonoursContext(t *testing.T) {
	p := NewLocalProvider()
	l, _ := p.GetListener("quiet")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocal_CloseAll(t *testing.T) {
	p := NewLocalProvider()
	a, _ := p.GetListener("a")
	b, _ := p.GetListener("b")

	p.CloseAll()

	_, err := a.Next(context.Background())
	assert.True(t, IsClosed(err))
	_, err = b.Next(context.Background())
	assert.True(t, IsClosed(err))
	assert.ElementsMatch(t, []string{"a", "b"}, p.Tags())
}

func TestLocal_ConcurrentNotifyAndListen(t *testing.T) {
	p := NewLocalProvider()
	n, _ := p.GetNotifier("fan")

	const listeners, values = 4, 50
	var wg sync.WaitGroup
	sums := make([]uint32, listeners)
	for i := 0; i < listeners; i++ {
		l, _ := p.GetListener("fan")
		wg.Add(1)
		go func(idx int, l Listener) {
			defer wg.Done()
			for {
				v, err := l.Next(context.Background())
				if err != nil {
					return
				}
				sums[idx] += v
			}
		}(i, l)
	}

	var want uint32
	for v := uint32(1); v <= values; v++ {
		require.NoError(t, n.Notify(context.Background(), v))
		want += v
	}
	require.NoError(t, n.Close())
	wg.Wait()

	for i, s := range sums {
		assert.Equal(t, want, s, "listener %d", i)
	}
}

func TestStubProvider(t *testing.T) {
	s := NewStubProvider(nil)

	n, err := s.GetNotifier("x")
	assert.Nil(t, n)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnavailable))

	l, err := s.GetListener("x")
	assert.Nil(t, l)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnavailable))
}
