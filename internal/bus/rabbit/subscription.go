package rabbit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"lily/internal/bus"
)

// SubscriptionManagerImpl handles RabbitMQ queue consumption. Each
// subject gets a durable queue bound to the bus exchange; workers
// consuming the same queue share deliveries.
type SubscriptionManagerImpl struct {
	bus      *RabbitBus
	channels map[string]*amqp.Channel
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// NewSubscriptionManager creates a new RabbitMQ subscription manager
func NewSubscriptionManager(b *RabbitBus) SubscriptionManager {
	return &SubscriptionManagerImpl{
		bus:      b,
		channels: make(map[string]*amqp.Channel),
	}
}

// Subscribe declares and binds the subject's queue, then starts a
// consumer loop with manual acknowledgement
func (s *SubscriptionManagerImpl) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bus.conn.IsConnected() {
		return fmt.Errorf("not connected to rabbitmq")
	}
	if _, ok := s.channels[subject]; ok {
		return fmt.Errorf("already subscribed to subject %s", subject)
	}

	ch, err := s.bus.conn.GetConnection().Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		subject, // name
		true,    // durable
		false,   // auto-delete
		false,   // exclusive
		false,   // no-wait
		nil,     // args
	); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", subject, err)
	}

	if err := ch.QueueBind(subject, subject, s.bus.config.EventBus, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue %s: %w", subject, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		subject,         // queue
		"lily-"+subject, // consumer tag
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to consume queue %s: %w", subject, err)
	}

	s.channels[subject] = ch
	s.wg.Add(1)
	go s.consume(ctx, subject, deliveries, handler)

	s.bus.logger.Info("subscribed to subject",
		"subject", subject,
		"queue", subject)

	return nil
}

// consume delivers messages until the channel closes or the context ends
func (s *SubscriptionManagerImpl) consume(ctx context.Context, subject string, deliveries <-chan amqp.Delivery, handler bus.Handler) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				s.bus.logger.Info("rabbitmq consumer stopped", "subject", subject)
				return
			}
			s.handleMessage(ctx, subject, handler, d)
		}
	}
}

// handleMessage delivers one message, acking on success and dropping it
// on failure since there is no dead-letter target
func (s *SubscriptionManagerImpl) handleMessage(ctx context.Context, subject string, handler bus.Handler, d amqp.Delivery) {
	atomic.AddUint64(&s.bus.stats.MessagesReceived, 1)

	s.bus.logger.Debug("processing message",
		"subject", subject,
		"payloadSize", len(d.Body))

	if err := handler(ctx, bus.Message{Subject: subject, Payload: d.Body}); err != nil {
		atomic.AddUint64(&s.bus.stats.Errors, 1)
		s.bus.logger.Error("failed to process message",
			"error", err,
			"subject", subject)
		if nackErr := d.Nack(false, false); nackErr != nil {
			s.bus.logger.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		s.bus.logger.Error("failed to ack message", "error", ackErr)
	}
}

// UnsubscribeAll closes every consumer channel and waits for the loops to exit
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	var firstErr error
	for subject, ch := range s.channels {
		if err := ch.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close consumer for subject %s: %w", subject, err)
		}
	}
	s.channels = make(map[string]*amqp.Channel)
	s.mu.Unlock()

	s.wg.Wait()
	return firstErr
}

// GetSubscribedSubjects returns the list of currently subscribed subjects
func (s *SubscriptionManagerImpl) GetSubscribedSubjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjects := make([]string, 0, len(s.channels))
	for subject := range s.channels {
		subjects = append(subjects, subject)
	}
	return subjects
}
