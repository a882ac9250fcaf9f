package rabbit

import (
	"context"
	"fmt"
	"time"

	"lily/config"
	"lily/internal/bus"
	"lily/internal/logger"
	"lily/internal/metrics"
)

// RabbitBus implements the bus.Bus interface for RabbitMQ. All traffic
// routes through one direct exchange named after the bus, with subjects
// as routing keys and one durable queue per subject.
type RabbitBus struct {
	logger  *logger.Logger
	config  *config.BusConfig
	metrics *metrics.Metrics
	stats   bus.BusStats

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher
}

// NewBus creates a connected RabbitMQ bus instance
func NewBus(cfg *config.BusConfig, log *logger.Logger, metricsService *metrics.Metrics) (bus.Bus, error) {
	b := &RabbitBus{
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
func (b *RabbitBus) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.pub.Publish(ctx, subject, payload)
}

// PublishEvent implements bus.Publisher
func (b *RabbitBus) PublishEvent(ctx context.Context, event bus.Event) error {
	return b.pub.PublishEvent(ctx, event)
}

// Subscribe implements bus.Consumer
func (b *RabbitBus) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	return b.sub.Subscribe(ctx, subject, handler)
}

// Connected implements bus.Bus
func (b *RabbitBus) Connected() bool {
	return b.conn.IsConnected()
}

// Close stops consumers and tears down the connection
func (b *RabbitBus) Close() error {
	b.logger.Info("shutting down RabbitMQ bus")

	if err := b.sub.UnsubscribeAll(); err != nil {
		b.logger.Error("failed to stop consumers", "error", err)
	}
	b.conn.Disconnect()
	return nil
}

// GetStats returns transport-level counters
func (b *RabbitBus) GetStats() bus.BusStats {
	return b.stats
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *RabbitBus) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
