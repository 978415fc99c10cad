package pubsub

import (
	"context"
)

// Subscriber registers handlers for subjects. An empty queue means plain
// fan-out delivery; a non-empty queue delivers each message to one member
// of the queue group on transports that support groups.
type Subscriber interface {
	Subscribe(subject, queue string, handler Handler) (Subscription, error)
	SubscribeAsync(subject, queue string, handler Handler) (Subscription, error)
	Flush() error
}

type Handler func(ctx context.Context, msg Message)

type Subscription interface {
	Unsubscribe() error
}
