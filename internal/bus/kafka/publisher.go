package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	kafka "github.com/segmentio/kafka-go"

	"lily/internal/bus"
	"lily/internal/metrics"
)

// PublisherImpl handles Kafka message publishing through one writer per
// topic, created on first use
type PublisherImpl struct {
	bus     *KafkaBus
	writers map[string]*kafka.Writer
	mu      sync.Mutex
	closed  bool
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(b *KafkaBus) Publisher {
	return &PublisherImpl{
		bus:     b,
		writers: make(map[string]*kafka.Writer),
	}
}

// Publish sends a payload to a subject's topic
func (p *PublisherImpl) Publish(ctx context.Context, subject string, payload []byte) error {
	return p.write(ctx, subject, kafka.Message{Value: payload})
}

// PublishEvent sends an event to its canonical topic, keyed by detail
// type so events of one type stay ordered within a partition
func (p *PublisherImpl) PublishEvent(ctx context.Context, event bus.Event) error {
	subject, payload, err := bus.EncodeEvent(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.DetailType),
		Value: payload,
	}
	if err := p.write(ctx, subject, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.bus.logger.Debug("published event",
		"subject", subject,
		"detailType", event.DetailType)

	return nil
}

func (p *PublisherImpl) write(ctx context.Context, subject string, msg kafka.Message) error {
	if !p.bus.conn.IsConnected() {
		return fmt.Errorf("not connected to kafka")
	}

	w, err := p.writerFor(subject)
	if err != nil {
		return err
	}

	if err := w.WriteMessages(ctx, msg); err != nil {
		atomic.AddUint64(&p.bus.stats.Errors, 1)
		p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncPublishTotal("kafka", "error")
		})
		p.bus.logger.Error("failed to publish message",
			"error", err,
			"topic", subject)
		return err
	}

	atomic.AddUint64(&p.bus.stats.MessagesPublished, 1)
	p.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncPublishTotal("kafka", "success")
	})

	p.bus.logger.Debug("published message",
		"topic", subject,
		"payloadSize", len(msg.Value))

	return nil
}

func (p *PublisherImpl) writerFor(topic string) (*kafka.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("publisher is closed")
	}

	if w, ok := p.writers[topic]; ok {
		return w, nil
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(p.bus.config.Kafka.Brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	p.writers[topic] = w
	return w, nil
}

// Close flushes and closes all writers
func (p *PublisherImpl) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	p.closed = true
	return firstErr
}
