package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	kafka "github.com/segmentio/kafka-go"

	"lily/internal/bus"
)

// SubscriptionManagerImpl handles Kafka consumer group subscriptions.
// Each subject gets its own reader; deliveries are shared across worker
// processes joining the same group.
type SubscriptionManagerImpl struct {
	bus     *KafkaBus
	readers map[string]*kafka.Reader
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewSubscriptionManager creates a new Kafka subscription manager
func NewSubscriptionManager(b *KafkaBus) SubscriptionManager {
	return &SubscriptionManagerImpl{
		bus:     b,
		readers: make(map[string]*kafka.Reader),
	}
}

// Subscribe starts a consumer loop for a subject's topic
func (s *SubscriptionManagerImpl) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bus.conn.IsConnected() {
		return fmt.Errorf("not connected to kafka")
	}
	if _, ok := s.readers[subject]; ok {
		return fmt.Errorf("already subscribed to subject %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.bus.config.Kafka.Brokers,
		Topic:    subject,
		GroupID:  s.bus.config.Kafka.GroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	s.readers[subject] = reader
	s.wg.Add(1)
	go s.consume(ctx, subject, reader, handler)

	s.bus.logger.Info("subscribed to subject",
		"subject", subject,
		"group", s.bus.config.Kafka.GroupID)

	return nil
}

// consume reads messages until the reader is closed or the context ends
func (s *SubscriptionManagerImpl) consume(ctx context.Context, subject string, reader *kafka.Reader, handler bus.Handler) {
	defer s.wg.Done()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				s.bus.logger.Info("kafka consumer stopped", "subject", subject)
			} else {
				s.bus.logger.Error("kafka consumer failed",
					"error", err,
					"subject", subject)
			}
			return
		}

		s.handleMessage(ctx, subject, handler, m)
	}
}

// handleMessage delivers a consumed Kafka message to the handler
func (s *SubscriptionManagerImpl) handleMessage(ctx context.Context, subject string, handler bus.Handler, m kafka.Message) {
	atomic.AddUint64(&s.bus.stats.MessagesReceived, 1)

	s.bus.logger.Debug("processing message",
		"subject", subject,
		"payloadSize", len(m.Value))

	if err := handler(ctx, bus.Message{Subject: subject, Payload: m.Value}); err != nil {
		atomic.AddUint64(&s.bus.stats.Errors, 1)
		s.bus.logger.Error("failed to process message",
			"error", err,
			"subject", subject)
	}
}

// UnsubscribeAll closes every reader and waits for the consumer loops to exit
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	var firstErr error
	for subject, reader := range s.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close reader for subject %s: %w", subject, err)
		}
	}
	s.readers = make(map[string]*kafka.Reader)
	s.mu.Unlock()

	s.wg.Wait()
	return firstErr
}

// GetSubscribedSubjects returns the list of currently subscribed subjects
func (s *SubscriptionManagerImpl) GetSubscribedSubjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjects := make([]string, 0, len(s.readers))
	for subject := range s.readers {
		subjects = append(subjects, subject)
	}
	return subjects
}
