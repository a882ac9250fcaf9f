package nats

import (
	"context"
	"fmt"
	"sync/atomic"

	"lily/internal/bus"
	"lily/internal/metrics"
)

// PublisherImpl implements the Publisher interface for NATS
type PublisherImpl struct {
	bus  *NATSBus
	conn ConnectionManager
}

// NewPublisher creates a new NATS publisher
func NewPublisher(b *NATSBus, conn ConnectionManager) Publisher {
	return &PublisherImpl{
		bus:  b,
		conn: conn,
	}
}

// Publish sends a payload to a specific subject
func (p *PublisherImpl) Publish(ctx context.Context, subject string, payload []byte) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("not connected to NATS server")
	}

	if err := p.conn.GetConnection().Publish(subject, payload); err != nil {
		atomic.AddUint64(&p.bus.stats.Errors, 1)
		p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncPublishTotal("nats", "error")
		})
		p.bus.logger.Error("failed to publish message",
			"error", err,
			"subject", subject)
		return err
	}

	atomic.AddUint64(&p.bus.stats.MessagesPublished, 1)
	p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncPublishTotal("nats", "success")
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
