package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rendis/taskchain/pkg/schema"
)

// DefaultBuffer is the per-listener capacity of the local provider.
const DefaultBuffer = 8

// LocalProvider is an in-process broadcast provider. Each tag has at most one
// notifier and any number of listeners; a listener only sees values sent
// after it was created.
type LocalProvider struct {
	buffer int

	mu     sync.Mutex
	topics map[string]*topic
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithBuffer sets the per-listener buffer size.
func WithBuffer(n int) LocalOption {
	return func(p *LocalProvider) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// NewLocalProvider creates an empty provider.
func NewLocalProvider(opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		buffer: DefaultBuffer,
		topics: make(map[string]*topic),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalProvider) topic(tag string) *topic {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[tag]
	if !ok {
		t = &topic{
			tag:    tag,
			subs:   make(map[uint64]*localListener),
			closed: make(chan struct{}),
		}
		p.topics[tag] = t
	}
	return t
}

// GetNotifier returns the single notifier of tag. A second call for the same
// tag fails with ALREADY_REGISTERED.
func (p *LocalProvider) GetNotifier(tag string) (Notifier, error) {
	t := p.topic(tag)
	if !t.notifierTaken.CompareAndSwap(false, true) {
		return nil, schema.NewErrorf(schema.ErrCodeAlreadyRegistered, "notifier for event %q already taken", tag)
	}
	return &localNotifier{topic: t}, nil
}

// GetListener subscribes a new listener to tag.
func (p *LocalProvider) GetListener(tag string) (Listener, error) {
	t := p.topic(tag)
	l := &localListener{
		topic: t,
		id:    t.seq.Add(1),
		ch:    make(chan uint32, p.buffer),
		done:  make(chan struct{}),
	}
	t.mu.Lock()
	t.subs[l.id] = l
	t.mu.Unlock()
	return l, nil
}

// Tags lists the tags that have been requested so far.
func (p *LocalProvider) Tags() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	tags := make([]string, 0, len(p.topics))
	for tag := range p.topics {
		tags = append(tags, tag)
	}
	return tags
}

// CloseAll closes every topic, ending all listeners. Used on program teardown.
func (p *LocalProvider) CloseAll() {
	p.mu.Lock()
	topics := make([]*topic, 0, len(p.topics))
	for _, t := range p.topics {
		topics = append(topics, t)
	}
	p.mu.Unlock()

	for _, t := range topics {
		t.close()
	}
}

type topic struct {
	tag           string
	notifierTaken atomic.Bool
	seq           atomic.Uint64

	mu   sync.Mutex
	subs map[uint64]*localListener

	closeOnce sync.Once
	closed    chan struct{}
}

func (t *topic) snapshot() []*localListener {
	t.mu.Lock()
	defer t.mu.Unlock()

	subs := make([]*localListener, 0, len(t.subs))
	for _, l := range t.subs {
		subs = append(subs, l)
	}
	return subs
}

func (t *topic) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *topic) close() {
	t.closeOnce.Do(func() { close(t.closed) })
}

type localNotifier struct {
	topic *topic
}

func (n *localNotifier) Notify(ctx context.Context, value uint32) error {
	if n.topic.isClosed() {
		return errClosed(n.topic.tag)
	}
	for _, l := range n.topic.snapshot() {
		select {
		case l.ch <- value:
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (n *localNotifier) NotifySync(value uint32) error {
	if n.topic.isClosed() {
		return errClosed(n.topic.tag)
	}
	for _, l := range n.topic.snapshot() {
		select {
		case l.ch <- value:
		case <-l.done:
		default:
			return schema.NewErrorf(schema.ErrCodeChannelFull, "listener of event %q is full", n.topic.tag)
		}
	}
	return nil
}

func (n *localNotifier) Close() error {
	n.topic.close()
	return nil
}

type localListener struct {
	topic *topic
	id    uint64
	ch    chan uint32

	closeOnce sync.Once
	done      chan struct{}
}

func (l *localListener) Next(ctx context.Context) (uint32, error) {
	// Buffered values win over a concurrent close.
	select {
	case v := <-l.ch:
		return v, nil
	default:
	}

	select {
	case v := <-l.ch:
		return v, nil
	case <-l.topic.closed:
		select {
		case v := <-l.ch:
			return v, nil
		default:
			return 0, errClosed(l.topic.tag)
		}
	case <-l.done:
		return 0, errClosed(l.topic.tag)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (l *localListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.topic.mu.Lock()
		delete(l.topic.subs, l.id)
		l.topic.mu.Unlock()
	})
	return nil
}
