package mqtt

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lily/internal/bus"
)

// ConnectionManager handles MQTT connection lifecycle
type ConnectionManager interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	GetClient() mqtt.Client
}

// SubscriptionManager handles topic subscriptions and message delivery
type SubscriptionManager interface {
	Subscribe(ctx context.Context, subject string, handler bus.Handler) error
	ResubscribeAll() error
	UnsubscribeAll() error
	GetSubscribedSubjects() []string
}

// Publisher handles message publishing
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishEvent(ctx context.Context, event bus.Event) error
}
