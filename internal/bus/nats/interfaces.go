package nats

import (
	"context"

	"github.com/nats-io/nats.go"

	"lily/internal/bus"
)

// ConnectionManager handles NATS connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetConnection() *nats.Conn
}

// SubscriptionManager handles subject subscriptions and message delivery
type SubscriptionManager interface {
	Subscribe(ctx context.Context, subject string, handler bus.Handler) error
	UnsubscribeAll() error
	GetSubscribedSubjects() []string
}

// Publisher handles message publishing
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishEvent(ctx context.Context, event bus.Event) error
}
