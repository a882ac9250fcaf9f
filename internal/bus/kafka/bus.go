package kafka

import (
	"context"
	"fmt"
	"time"

	"lily/config"
	"lily/internal/bus"
	"lily/internal/logger"
	"lily/internal/metrics"
)

// KafkaBus implements the bus.Bus interface for Kafka. Subjects are used
// as topic names directly, which Kafka permits since dots are legal in
// topic names.
type KafkaBus struct {
	logger  *logger.Logger
	config  *config.BusConfig
	metrics *metrics.Metrics
	stats   bus.BusStats

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher
}

// NewBus creates a Kafka bus instance, probing the brokers up front
func NewBus(cfg *config.BusConfig, log *logger.Logger, metricsService *metrics.Metrics) (bus.Bus, error) {
	b := &KafkaBus{
		logger:  log,
		config:  cfg,
		metrics: metricsService,
		stats: bus.BusStats{
			LastReconnect: time.Now(),
		},
	}

	var err error
	b.conn, err = NewConnectionManager(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	b.pub = NewPublisher(b)
	b.sub = NewSubscriptionManager(b)

	return b, nil
}

// Publish implements bus.Publisher
func (b *KafkaBus) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.pub.Publish(ctx, subject, payload)
}

// PublishEvent implements bus.Publisher
func (b *KafkaBus) PublishEvent(ctx context.Context, event bus.Event) error {
	return b.pub.PublishEvent(ctx, event)
}

// Subscribe implements bus.Consumer
func (b *KafkaBus) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	return b.sub.Subscribe(ctx, subject, handler)
}

// Connected implements bus.Bus
func (b *KafkaBus) Connected() bool {
	return b.conn.IsConnected()
}

// Close stops consumers, flushes writers and marks the bus disconnected
func (b *KafkaBus) Close() error {
	b.logger.Info("shutting down Kafka bus")

	if err := b.sub.UnsubscribeAll(); err != nil {
		b.logger.Error("failed to stop consumers", "error", err)
	}
	if err := b.pub.Close(); err != nil {
		b.logger.Error("failed to close writers", "error", err)
	}
	b.conn.Disconnect()
	return nil
}

// GetStats returns transport-level counters
func (b *KafkaBus) GetStats() bus.BusStats {
	return b.stats
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *KafkaBus) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
