package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"lily/internal/bus"
)

// ConnectionManager handles the AMQP connection and the shared publish channel
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetConnection() *amqp.Connection
	GetChannel() *amqp.Channel
}

// SubscriptionManager handles queue consumption and message delivery
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
