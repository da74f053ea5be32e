package events

import (
	"context"
	"testing"
	"time"

	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleListener_FiresEachPeriod(t *testing.T) {
	c, err := NewCycleListener(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer c.Close()

	start := time.Now()
	for i := uint32(1); i <= 3; i++ {
		v, err := c.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestCycleListener_SkipsMissedCycles(t *testing.T) {
	c, err := NewCycleListener(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer c.Close()

	time.Sleep(55 * time.Millisecond)
	v, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Greater(t, v, uint32(1), "overrun cycles are skipped")
}

func TestCycleListener_CancelledWaitKeepsCycle(t *testing.T) {
	c, err := NewCycleListener(40*time.Millisecond, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	v, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v, "the cancelled wait must not consume cycle 1")
}

func TestCycleListener_Close(t *testing.T) {
	c, err := NewCycleListener(time.Hour, nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = c.Close()
	}()
	_, err = c.Next(context.Background())
	assert.True(t, IsClosed(err))
}

func TestCycleListener_InvalidPeriod(t *testing.T) {
	_, err := NewCycleListener(0, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestCronListener_Parse(t *testing.T) {
	_, err := NewCronListener("not a cron")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	c, err := NewCronListener("*/5 * * * *")
	require.NoError(t, err)
	next := c.NextFire()
	assert.Equal(t, 0, next.Minute()%5)
	assert.True(t, next.After(time.Now()))
}

func TestCronListener_FiresOnSecondSchedule(t *testing.T) {
	c, err := NewCronListener("* * * * * *")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	v, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestCronListener_CancelledWaitKeepsCount(t *testing.T) {
	c, err := NewCronListener("* * * * * *")
	require.NoError(t, err)
	defer c.Close()

	before := c.NextFire()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, c.NextFire())

	ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	v, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestCronListener_Close(t *testing.T) {
	c, err := NewCronListener("0 0 1 1 *")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Next(context.Background())
	assert.True(t, IsClosed(err))
}
