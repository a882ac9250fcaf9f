package rabbit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"lily/internal/bus"
	"lily/internal/metrics"
)

// PublisherImpl handles RabbitMQ message publishing. Publishes are
// serialized because the shared channel is not safe for concurrent use.
type PublisherImpl struct {
	bus  *RabbitBus
	conn ConnectionManager
	mu   sync.Mutex
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(b *RabbitBus) Publisher {
	return &PublisherImpl{
		bus:  b,
		conn: b.conn,
	}
}

// Publish sends a persistent message to the bus exchange with the
// subject as routing key
func (p *PublisherImpl) Publish(ctx context.Context, subject string, payload []byte) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("not connected to rabbitmq")
	}

	p.mu.Lock()
	err := p.conn.GetChannel().PublishWithContext(ctx,
		p.bus.config.EventBus, // exchange
		subject,               // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		})
	p.mu.Unlock()

	if err != nil {
		atomic.AddUint64(&p.bus.stats.Errors, 1)
		p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncPublishTotal("rabbit", "error")
		})
		p.bus.logger.Error("failed to publish message",
			"error", err,
			"subject", subject)
		return err
	}

	atomic.AddUint64(&p.bus.stats.MessagesPublished, 1)
	p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncPublishTotal("rabbit", "success")
	})

	p.bus.logger.Debug("published message",
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}

// PublishEvent sends an event to its canonical subject
func (p *PublisherImpl) PublishEvent(ctx context.Context, event bus.Event) error {
	subject, payload, err := bus.EncodeEvent(event)
	if err != nil {
		return err
	}

	if err := p.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.bus.logger.Debug("published event",
		"subject", subject,
		"detailType", event.DetailType)

	return nil
}
