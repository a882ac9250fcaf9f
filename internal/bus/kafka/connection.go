package kafka

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"lily/internal/metrics"
)

// ConnectionManagerImpl probes broker reachability for the Kafka bus
type ConnectionManagerImpl struct {
	bus       *KafkaBus
	connected atomic.Bool
}

// NewConnectionManager creates a connection manager and verifies that at
// least the first broker is reachable
func NewConnectionManager(b *KafkaBus) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		bus: b,
	}

	if err := cm.Connect(); err != nil {
		return nil, err
	}

	return cm, nil
}

// Connect dials the first configured broker to confirm reachability.
// Writers and readers dial on demand afterwards.
func (cm *ConnectionManagerImpl) Connect() error {
	if len(cm.bus.config.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	broker := cm.bus.config.Kafka.Brokers[0]
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker %s: %w", broker, err)
	}
	conn.Close()

	cm.bus.logger.Info("connected to kafka", "broker", broker)
	cm.connected.Store(true)
	cm.bus.stats.LastReconnect = time.Now()

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(true)
	})

	return nil
}

// Disconnect marks the bus as disconnected
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.bus.logger.Info("disconnecting from kafka")
	cm.connected.Store(false)

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(false)
	})
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}
