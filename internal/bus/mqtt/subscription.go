package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lily/internal/bus"
)

type subscription struct {
	ctx     context.Context
	handler bus.Handler
}

// SubscriptionManagerImpl handles MQTT topic subscriptions, keeping the
// handlers so they survive reconnects of a clean-session client.
type SubscriptionManagerImpl struct {
	bus  *MQTTBus
	subs map[string]subscription // keyed by dotted subject
	mu   sync.RWMutex
}

// NewSubscriptionManager creates a new MQTT subscription manager
func NewSubscriptionManager(b *MQTTBus) SubscriptionManager {
	return &SubscriptionManagerImpl{
		bus:  b,
		subs: make(map[string]subscription),
	}
}

// Subscribe subscribes to a subject's topic at QoS 1
func (s *SubscriptionManagerImpl) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bus.conn.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	if err := s.subscribeTopic(ctx, subject, handler); err != nil {
		return err
	}

	s.subs[subject] = subscription{ctx: ctx, handler: handler}
	s.bus.logger.Info("subscribed to subject",
		"subject", subject,
		"topic", bus.ToMQTTTopic(subject))

	return nil
}

func (s *SubscriptionManagerImpl) subscribeTopic(ctx context.Context, subject string, handler bus.Handler) error {
	topic := bus.ToMQTTTopic(subject)

	token := s.bus.conn.GetClient().Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
		s.handleMessage(ctx, handler, msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// ResubscribeAll re-establishes every tracked subscription
func (s *SubscriptionManagerImpl) ResubscribeAll() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for subject, sub := range s.subs {
		if err := s.subscribeTopic(sub.ctx, subject, sub.handler); err != nil {
			return err
		}
		s.bus.logger.Debug("resubscribed to subject", "subject", subject)
	}
	return nil
}

// handleMessage delivers a received MQTT message to the handler
func (s *SubscriptionManagerImpl) handleMessage(ctx context.Context, handler bus.Handler, msg mqtt.Message) {
	atomic.AddUint64(&s.bus.stats.MessagesReceived, 1)

	subject := bus.FromMQTTTopic(msg.Topic())

	s.bus.logger.Debug("processing message",
		"subject", subject,
		"payloadSize", len(msg.Payload()))

	if err := handler(ctx, bus.Message{Subject: subject, Payload: msg.Payload()}); err != nil {
		atomic.AddUint64(&s.bus.stats.Errors, 1)
		s.bus.logger.Error("failed to process message",
			"error", err,
			"subject", subject)
	}
}

// UnsubscribeAll unsubscribes from all topics
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, 0, len(s.subs))
	for subject := range s.subs {
		topics = append(topics, bus.ToMQTTTopic(subject))
	}

	if len(topics) > 0 {
		token := s.bus.conn.GetClient().Unsubscribe(topics...)
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to unsubscribe: %w", token.Error())
		}
	}

	s.subs = make(map[string]subscription)
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
