package mqtt

import (
	"context"
	"fmt"
	"time"

	"lily/config"
	"lily/internal/bus"
	"lily/internal/logger"
	"lily/internal/metrics"
)

// MQTTBus implements the bus.Bus interface for MQTT. Subjects map onto
// topics by swapping the dotted separator for slashes.
type MQTTBus struct {
	logger  *logger.Logger
	config  *config.BusConfig
	metrics *metrics.Metrics
	stats   bus.BusStats

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher
}

// NewBus creates a connected MQTT bus instance
func NewBus(cfg *config.BusConfig, log *logger.Logger, metricsService *metrics.Metrics) (bus.Bus, error) {
	b := &MQTTBus{
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
func (b *MQTTBus) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.pub.Publish(ctx, subject, payload)
}

// PublishEvent implements bus.Publisher
func (b *MQTTBus) PublishEvent(ctx context.Context, event bus.Event) error {
	return b.pub.PublishEvent(ctx, event)
}

// Subscribe implements bus.Consumer
func (b *MQTTBus) Subscribe(ctx context.Context, subject string, handler bus.Handler) error {
	return b.sub.Subscribe(ctx, subject, handler)
}

// Connected implements bus.Bus
func (b *MQTTBus) Connected() bool {
	return b.conn.IsConnected()
}

// Close unsubscribes everything and disconnects the client
func (b *MQTTBus) Close() error {
	b.logger.Info("shutting down MQTT bus")

	if err := b.sub.UnsubscribeAll(); err != nil {
		b.logger.Error("failed to unsubscribe from all topics", "error", err)
	}
	b.conn.Disconnect()
	return nil
}

// GetStats returns transport-level counters
func (b *MQTTBus) GetStats() bus.BusStats {
	return b.stats
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (b *MQTTBus) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if b.metrics != nil {
		fn(b.metrics)
	}
}
