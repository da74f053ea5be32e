package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/rendis/taskchain/pkg/schema"
)

const (
	defaultRedisPrefix = "taskchain:event:"
	closeSentinel      = "close"
)

// RedisProvider carries events over Redis pub/sub so that programs in
// different processes can signal each other. A tag maps to the channel
// <prefix><tag>; values travel as decimal strings.
type RedisProvider struct {
	client  *backend.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// RedisOption configures a RedisProvider.
type RedisOption func(*RedisProvider)

// WithRedisPrefix sets the channel prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(p *RedisProvider) {
		p.prefix = prefix
	}
}

// WithRedisTimeout bounds how long GetListener waits for the subscription
// to be confirmed.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(p *RedisProvider) {
		p.timeout = d
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(p *RedisProvider) {
		p.logger = l
	}
}

// NewRedisProvider connects to addr.
func NewRedisProvider(addr, password string, db int, opts ...RedisOption) *RedisProvider {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisProviderFromClient(client, opts...)
}

// NewRedisProviderFromClient wraps an existing client.
func NewRedisProviderFromClient(client *backend.Client, opts ...RedisOption) *RedisProvider {
	p := &RedisProvider{
		client:  client,
		prefix:  defaultRedisPrefix,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisProvider) channel(tag string) string {
	return p.prefix + tag
}

// Close releases the client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

func (p *RedisProvider) GetNotifier(tag string) (Notifier, error) {
	return &redisNotifier{provider: p, tag: tag}, nil
}

// GetListener subscribes and waits for the server to confirm, so values
// published after it returns are not missed.
func (p *RedisProvider) GetListener(tag string) (Listener, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ps := p.client.Subscribe(ctx, p.channel(tag))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, schema.NewErrorf(schema.ErrCodeUnavailable, "subscribe to event %q", tag).WithCause(err)
	}
	return &redisListener{
		tag:    tag,
		pubsub: ps,
		ch:     ps.Channel(backend.WithChannelSize(DefaultBuffer)),
		logger: p.logger,
	}, nil
}

type redisNotifier struct {
	provider *RedisProvider
	tag      string
	closed   atomic.Bool
}

func (n *redisNotifier) publish(ctx context.Context, payload string) error {
	if err := n.provider.client.Publish(ctx, n.provider.channel(n.tag), payload).Err(); err != nil {
		return schema.NewErrorf(schema.ErrCodeNonRecoverable, "publish event %q", n.tag).WithCause(err)
	}
	return nil
}

func (n *redisNotifier) Notify(ctx context.Context, value uint32) error {
	if n.closed.Load() {
		return errClosed(n.tag)
	}
	return n.publish(ctx, strconv.FormatUint(uint64(value), 10))
}

// NotifySync publishes with the provider's timeout; Redis has no
// per-listener buffer to report as full.
func (n *redisNotifier) NotifySync(value uint32) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.provider.timeout)
	defer cancel()
	return n.Notify(ctx, value)
}

func (n *redisNotifier) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.provider.timeout)
	defer cancel()
	return n.publish(ctx, closeSentinel)
}

type redisListener struct {
	tag    string
	pubsub *backend.PubSub
	ch     <-chan *backend.Message
	logger *slog.Logger
	ended  atomic.Bool
}

func (l *redisListener) Next(ctx context.Context) (uint32, error) {
	for {
		if l.ended.Load() {
			return 0, errClosed(l.tag)
		}
		select {
		case msg, ok := <-l.ch:
			if !ok {
				l.ended.Store(true)
				continue
			}
			if msg.Payload == closeSentinel {
				l.ended.Store(true)
				continue
			}
			v, err := strconv.ParseUint(msg.Payload, 10, 32)
			if err != nil {
				l.logger.Warn("dropping malformed event payload",
					slog.String("tag", l.tag), slog.String("payload", msg.Payload))
				continue
			}
			return uint32(v), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (l *redisListener) Close() error {
	l.ended.Store(true)
	if err := l.pubsub.Close(); err != nil {
		return fmt.Errorf("close subscription %q: %w", l.tag, err)
	}
	return nil
}
