package nats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"lily/internal/metrics"
)

// ConnectionManagerImpl implements ConnectionManager for NATS
type ConnectionManagerImpl struct {
	bus       *NATSBus
	conn      *nats.Conn
	connected atomic.Bool
}

// NewConnectionManager creates a new NATS connection manager
func NewConnectionManager(b *NATSBus) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		bus: b,
	}

	// Establish initial connection
	if err := cm.Connect(); err != nil {
		return nil, err
	}

	return cm, nil
}

// Connect establishes connection to the NATS server
func (cm *ConnectionManagerImpl) Connect() error {
	if len(cm.bus.config.NATS.URLs) == 0 {
		return fmt.Errorf("no NATS server URLs provided")
	}

	opts := []nats.Option{
		nats.Name(cm.bus.config.NATS.ClientID),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(cm.handleDisconnect),
		nats.ReconnectHandler(cm.handleReconnect),
		nats.ClosedHandler(cm.handleClosed),
	}

	// Add authentication if configured
	if cm.bus.config.NATS.Username != "" {
		opts = append(opts, nats.UserInfo(
			cm.bus.config.NATS.Username,
			cm.bus.config.NATS.Password))
	}

	// Configure TLS if enabled
	if cm.bus.config.NATS.TLS.Enable {
		opts = append(opts, nats.ClientCert(
			cm.bus.config.NATS.TLS.CertFile,
			cm.bus.config.NATS.TLS.KeyFile,
		))

		if cm.bus.config.NATS.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cm.bus.config.NATS.TLS.CAFile))
		}
	}

	cm.bus.logger.Info("connecting to NATS server", "urls", cm.bus.config.NATS.URLs)

	var err error
	cm.conn, err = nats.Connect(cm.bus.config.NATS.URLs[0], opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	cm.connected.Store(true)

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(true)
	})

	cm.bus.logger.Info("connected to NATS server", "url", cm.conn.ConnectedUrl())

	return nil
}

// Disconnect cleanly disconnects from the NATS server
func (cm *ConnectionManagerImpl) Disconnect() {
	if cm.conn != nil {
		cm.bus.logger.Info("disconnecting from NATS server")
		cm.conn.Close()
		cm.connected.Store(false)
	}
}

// IsConnected returns the current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.conn != nil && cm.conn.IsConnected() && cm.connected.Load()
}

// GetConnection returns the NATS connection
func (cm *ConnectionManagerImpl) GetConnection() *nats.Conn {
	return cm.conn
}

// NATS connection event handlers

func (cm *ConnectionManagerImpl) handleDisconnect(conn *nats.Conn, err error) {
	cm.bus.logger.Error("disconnected from NATS server", "error", err)
	cm.connected.Store(false)

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(false)
	})
}

func (cm *ConnectionManagerImpl) handleReconnect(conn *nats.Conn) {
	// The client resubscribes existing subscriptions on its own
	cm.bus.logger.Info("reconnected to NATS server", "url", conn.ConnectedUrl())
	cm.connected.Store(true)
	cm.bus.stats.LastReconnect = time.Now()

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(true)
	})
}

func (cm *ConnectionManagerImpl) handleClosed(conn *nats.Conn) {
	cm.bus.logger.Warn("NATS connection closed")
	cm.connected.Store(false)

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(false)
	})
}
