package kafka

import (
	"context"

	"lily/internal/bus"
)

// ConnectionManager verifies broker reachability. kafka-go dials per
// request, so the connected flag reflects the startup probe rather than
// a live session.
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
}

// SubscriptionManager handles consumer group subscriptions and message delivery
type SubscriptionManager interface {
	Subscribe(ctx context.Context, subject string, handler bus.Handler) error
	UnsubscribeAll() error
	GetSubscribedSubjects() []string
}

// Publisher handles message publishing
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishEvent(ctx context.Context, event bus.Event) error
	Close() error
}
