package nats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"lily/internal/bus"
)

// SubscriptionManagerImpl implements SubscriptionManager for NATS
type SubscriptionManagerImpl struct {
	bus  *NATSBus
	conn ConnectionManager
	subs map[string]*nats.Subscription
	mu   sync.RWMutex
}

// NewSubscriptionManager creates a new NATS subscription manager
func NewSubscriptionManager(b *NATSBus, conn ConnectionManager) SubscriptionManager {
	return &SubscriptionManagerImpl{
		bus:  b,
		conn: conn,
		subs: make(map[string]*nats.Subscription),
	}
}

// Subscribe subscribes to a subject. When a queue group is configured the
// subscription joins it so deliveries are shared across worker processes.
func (s *SubscriptionManagerImpl) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.conn.IsConnected() {
		return fmt.Errorf("not connected to NATS server")
	}

	callback := func(msg *nats.Msg) {
		s.handleMessage(ctx, handler, msg)
	}

	natsConn := s.conn.GetConnection()
	group := s.bus.config.QueueGroup

	var sub *nats.Subscription
	var err error
	if group != "" {
		sub, err = natsConn.QueueSubscribe(subject, group, callback)
	} else {
		sub, err = natsConn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	s.subs[subject] = sub
	s.bus.logger.Info("subscribed to subject",
		"subject", subject,
		"queueGroup", group)

	return nil
}

// handleMessage delivers a received NATS message to the handler
func (s *SubscriptionManagerImpl) handleMessage(ctx context.Context, handler bus.Handler, msg *nats.Msg) {
	atomic.AddUint64(&s.bus.stats.MessagesReceived, 1)

	s.bus.logger.Debug("processing message",
		"subject", msg.Subject,
		"payloadSize", len(msg.Data))

	if err := handler(ctx, bus.Message{Subject: msg.Subject, Payload: msg.Data}); err != nil {
		atomic.AddUint64(&s.bus.stats.Errors, 1)
		s.bus.logger.Error("failed to process message",
			"error", err,
			"subject", msg.Subject)
	}
}

// UnsubscribeAll unsubscribes from all subjects
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for subject, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.bus.logger.Error("failed to unsubscribe from subject",
				"subject", subject,
				"error", err)
		} else {
			s.bus.logger.Debug("unsubscribed from subject", "subject", subject)
		}
	}

	s.subs = make(map[string]*nats.Subscription)
	return nil
}

// GetSubscribedSubjects returns the list of currently subscribed subjects
func (s *SubscriptionManagerImpl) GetSubscribedSubjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subjects := make([]string, 0, len(s.subs))
	for subject := range s.subs {
		subjects = append(subjects, subject)
	}
	return subjects
}
