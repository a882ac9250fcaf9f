package rabbit

import (
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lily/internal/metrics"
)

// ConnectionManagerImpl handles the AMQP connection lifecycle
type ConnectionManagerImpl struct {
	bus       *RabbitBus
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected atomic.Bool
}

// NewConnectionManager creates a connected AMQP connection manager
func NewConnectionManager(b *RabbitBus) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		bus: b,
	}

	if err := cm.Connect(); err != nil {
		return nil, err
	}

	return cm, nil
}

// Connect dials the broker, opens the publish channel and declares the
// bus exchange
func (cm *ConnectionManagerImpl) Connect() error {
	conn, err := amqp.Dial(cm.bus.config.Rabbit.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cm.bus.config.EventBus, // name
		"direct",               // kind
		true,                   // durable
		false,                  // auto-delete
		false,                  // internal
		false,                  // no-wait
		nil,                    // args
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", cm.bus.config.EventBus, err)
	}

	cm.conn = conn
	cm.channel = ch
	cm.connected.Store(true)
	cm.bus.stats.LastReconnect = time.Now()

	cm.bus.logger.Info("connected to rabbitmq", "exchange", cm.bus.config.EventBus)
	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(true)
	})

	// The client does not reconnect on its own; watch for closure so
	// health reporting stays accurate.
	go cm.watchClose(conn.NotifyClose(make(chan *amqp.Error, 1)))

	return nil
}

// watchClose flips the connected flag when the server closes the
// connection. Graceful Disconnect closes the channel without an error.
func (cm *ConnectionManagerImpl) watchClose(closed <-chan *amqp.Error) {
	err, ok := <-closed
	if !ok || err == nil {
		return
	}

	cm.bus.logger.Error("rabbitmq connection lost", "error", err)
	cm.connected.Store(false)

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(false)
	})
}

// Disconnect cleanly closes the channel and connection
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.bus.logger.Info("disconnecting from rabbitmq")
	cm.connected.Store(false)

	if cm.channel != nil {
		cm.channel.Close()
	}
	if cm.conn != nil {
		cm.conn.Close()
	}

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(false)
	})
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

// GetConnection returns the AMQP connection instance
func (cm *ConnectionManagerImpl) GetConnection() *amqp.Connection {
	return cm.conn
}

// GetChannel returns the shared publish channel
func (cm *ConnectionManagerImpl) GetChannel() *amqp.Channel {
	return cm.channel
}
