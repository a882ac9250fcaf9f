package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"

	"lily/internal/bus"
	"lily/internal/metrics"
)

// PublisherImpl handles MQTT message publishing
type PublisherImpl struct {
	bus  *MQTTBus
	conn ConnectionManager
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(b *MQTTBus) Publisher {
	return &PublisherImpl{
		bus:  b,
		conn: b.conn,
	}
}

// Publish sends a payload to a subject's topic at QoS 1
func (p *PublisherImpl) Publish(ctx context.Context, subject string, payload []byte) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	topic := bus.ToMQTTTopic(subject)

	token := p.conn.GetClient().Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		atomic.AddUint64(&p.bus.stats.Errors, 1)
		p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncPublishTotal("mqtt", "error")
		})
		p.bus.logger.Error("failed to publish message",
			"error", token.Error(),
			"topic", topic)
		return token.Error()
	}

	atomic.AddUint64(&p.bus.stats.MessagesPublished, 1)
	p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncPublishTotal("mqtt", "success")
	})

	p.bus.logger.Debug("published message",
		"topic", topic,
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
