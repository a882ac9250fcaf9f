package nats

import (
	"context"
	"fmt"
	"time"

	"lily/config"
	"lily/internal/bus"
	"lily/internal/logger"
	"lily/internal/metrics"
)

// NATSBus implements the bus.Bus interface for NATS
type NATSBus struct {
	logger  *logger.Logger
	config  *config.BusConfig
	metrics *metrics.Metrics
	stats   bus.BusStats

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher
}

// NewBus creates a connected NATS bus instance
func NewBus(cfg *config.BusConfig, log *logger.Logger, metricsService *metrics.Metrics) (bus.Bus, error) {
	b := &NATSBus{
		logger:  log,
		config:  cfg,
		metrics: metricsService,
		stats: bus.BusStats{
			LastReconnect: time.Now(),
		},
	}

	// Initialize connection manager first
	var err error
	b.conn, err = NewConnectionManager(b)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	b.pub = NewPublisher(b, b.conn)
	b.sub = NewSubscriptionManager(b, b.conn)

	return b, nil
}

// Publish implements bus.Publisher
func (b *NATSBus) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.pub.Publish(ctx, subject, payload)
}

// PublishEvent implements bus.Publisher
func (b *NATSBus) PublishEvent(ctx context.Context, event bus.Event) error {
	return b.pub.PublishEvent(ctx, event)
}

// Subscribe implements bus.Consumer
func (b *NATSBus) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	return b.sub.Subscribe(ctx, subject, handler)
}

// Connected implements bus.Bus
func (b *NATSBus) Connected() bool {
	return b.conn.IsConnected()
}

// Close unsubscribes everything and drops the connection
func (b *NATSBus) Close() error {
	b.logger.Info("shutting down NATS bus")

	if err := b.sub.UnsubscribeAll(); err != nil {
		b.logger.Error("failed to unsubscribe from all subjects", "error", err)
	}
	b.conn.Disconnect()
	return nil
}

// GetStats returns transport-level counters
func (b *NATSBus) GetStats() bus.BusStats {
	return b.stats
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *NATSBus) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
