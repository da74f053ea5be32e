package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/taskchain/pkg/schema"
)

// CycleListener fires once per period, aligned to its creation time. The
// value is the cycle number. A consumer that falls behind skips the missed
// cycles and an overrun warning is logged.
type CycleListener struct {
	period time.Duration
	start  time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cycle uint32

	closeOnce sync.Once
	done      chan struct{}
}

// NewCycleListener creates a listener firing every period.
func NewCycleListener(period time.Duration, logger *slog.Logger) (*CycleListener, error) {
	if period <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "timer period must be positive, got %s", period)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleListener{
		period: period,
		start:  time.Now(),
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Next waits for the following cycle. The cycle is only consumed when the
// wait completes, so a cancelled wait does not skip a period.
func (c *CycleListener) Next(ctx context.Context) (uint32, error) {
	c.mu.Lock()
	cycle := c.cycle + 1
	deadline := c.start.Add(time.Duration(cycle) * c.period)
	if late := time.Since(deadline); late > c.period {
		missed := uint32(late / c.period)
		c.logger.WarnContext(ctx, "timer cycle overrun",
			slog.Duration("period", c.period), slog.Int("missed_cycles", int(missed)))
		cycle += missed
		deadline = c.start.Add(time.Duration(cycle) * c.period)
	}
	c.mu.Unlock()

	if err := waitUntil(ctx, deadline, c.done); err != nil {
		return 0, err
	}

	c.mu.Lock()
	if cycle > c.cycle {
		c.cycle = cycle
	}
	c.mu.Unlock()
	return cycle, nil
}

func (c *CycleListener) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// CronListener fires on a cron schedule. Expressions have five fields with
// an optional leading seconds field, or a descriptor such as "@every 1s".
type CronListener struct {
	expr     string
	schedule cron.Schedule

	mu   sync.Mutex
	last time.Time
	hits uint32

	closeOnce sync.Once
	done      chan struct{}
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewCronListener parses expr.
func NewCronListener(expr string) (*CronListener, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q", expr).WithCause(err)
	}
	return &CronListener{
		expr:     expr,
		schedule: sched,
		last:     time.Now(),
		done:     make(chan struct{}),
	}, nil
}

// NextFire returns when the listener fires next, without waiting.
func (c *CronListener) NextFire() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule.Next(c.last)
}

// Next waits for the next scheduled time. As with CycleListener, a
// cancelled wait consumes nothing.
func (c *CronListener) Next(ctx context.Context) (uint32, error) {
	c.mu.Lock()
	next := c.schedule.Next(c.last)
	if now := time.Now(); next.Before(now) {
		next = c.schedule.Next(now)
	}
	c.mu.Unlock()

	if err := waitUntil(ctx, next, c.done); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = next
	c.hits++
	return c.hits, nil
}

func (c *CronListener) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func waitUntil(ctx context.Context, t time.Time, done <-chan struct{}) error {
	select {
	case <-done:
		return schema.NewError(schema.ErrCodeChannelClosed, "timer closed")
	default:
	}

	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-done:
		return schema.NewError(schema.ErrCodeChannelClosed, "timer closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}
