// Package events provides the tag-addressed Notifier/Listener endpoints that
// actions use to signal each other, and the providers that create them.
package events

import (
	"context"

	"github.com/rendis/taskchain/pkg/schema"
)

// Notifier sends an unsigned value to every listener of its tag.
type Notifier interface {
	// Notify waits until the value is accepted or ctx ends.
	Notify(ctx context.Context, value uint32) error
	// NotifySync never waits for listeners; a full listener buffer is a
	// CHANNEL_FULL error.
	NotifySync(value uint32) error
	// Close ends the stream. Listeners drain what they hold, then observe
	// CHANNEL_CLOSED.
	Close() error
}

// Listener receives the values sent on its tag.
type Listener interface {
	// Next waits for the next value. It returns a CHANNEL_CLOSED error once
	// the notifier is gone and nothing is buffered.
	Next(ctx context.Context) (uint32, error)
	Close() error
}

// Provider creates endpoints by tag. The engine is agnostic to which
// implementation is wired in at the composition root.
type Provider interface {
	GetNotifier(tag string) (Notifier, error)
	GetListener(tag string) (Listener, error)
}

func errClosed(tag string) error {
	return schema.NewErrorf(schema.ErrCodeChannelClosed, "event %q is closed", tag)
}

// IsClosed reports whether err means the endpoint's stream has ended.
func IsClosed(err error) bool {
	return schema.IsCode(err, schema.ErrCodeChannelClosed)
}
