package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lily/internal/metrics"
)

// ConnectionManagerImpl handles MQTT connection lifecycle
type ConnectionManagerImpl struct {
	bus       *MQTTBus
	client    mqtt.Client
	connected atomic.Bool
}

// NewConnectionManager creates a new MQTT connection manager
func NewConnectionManager(b *MQTTBus) (ConnectionManager, error) {
	cm := &ConnectionManagerImpl{
		bus: b,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(b.config.MQTT.Broker).
		SetClientID(b.config.MQTT.ClientID).
		SetUsername(b.config.MQTT.Username).
		SetPassword(b.config.MQTT.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute) // Prevent exponential backoff from growing too large

	opts.OnConnect = cm.handleConnect
	opts.OnConnectionLost = cm.handleDisconnect
	opts.OnReconnecting = cm.handleReconnecting

	// Configure TLS if enabled
	if b.config.MQTT.TLS.Enable {
		tlsConfig, err := cm.newTLSConfig(
			b.config.MQTT.TLS.CertFile,
			b.config.MQTT.TLS.KeyFile,
			b.config.MQTT.TLS.CAFile,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	cm.client = mqtt.NewClient(opts)

	// Establish initial connection
	if token := cm.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", token.Error())
	}

	return cm, nil
}

// NewConnectionManagerWithClient creates a connection manager with a provided client (for testing)
func NewConnectionManagerWithClient(b *MQTTBus, client mqtt.Client) ConnectionManager {
	cm := &ConnectionManagerImpl{
		bus:    b,
		client: client,
	}
	cm.connected.Store(true)
	return cm
}

// Connect establishes connection to the MQTT broker
func (cm *ConnectionManagerImpl) Connect() error {
	if token := cm.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", token.Error())
	}
	return nil
}

// Disconnect cleanly disconnects from the MQTT broker
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.bus.logger.Info("disconnecting from mqtt broker")
	cm.client.Disconnect(250)
	cm.connected.Store(false)
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

// GetClient returns the MQTT client instance
func (cm *ConnectionManagerImpl) GetClient() mqtt.Client {
	return cm.client
}

// handleConnect processes successful connections and resubscribes
func (cm *ConnectionManagerImpl) handleConnect(client mqtt.Client) {
	cm.bus.logger.Info("mqtt client connected", "broker", cm.bus.config.MQTT.Broker)
	cm.connected.Store(true)
	cm.bus.stats.LastReconnect = time.Now()

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(true)
	})

	// Clean sessions lose server-side state, so subscriptions must be
	// re-established on every connect. sub is nil during the very first
	// connect, before the bus finishes assembling.
	if cm.bus.sub != nil {
		if err := cm.bus.sub.ResubscribeAll(); err != nil {
			cm.bus.logger.Error("failed to resubscribe after reconnect", "error", err)
			return
		}
		cm.bus.logger.Info("resubscribed after reconnect",
			"subjects", cm.bus.sub.GetSubscribedSubjects())
	}
}

// handleDisconnect processes connection loss
func (cm *ConnectionManagerImpl) handleDisconnect(client mqtt.Client, err error) {
	cm.bus.logger.Error("mqtt connection lost", "error", err)
	cm.connected.Store(false)

	cm.bus.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetBusConnectionStatus(false)
	})
}

// handleReconnecting processes reconnection attempts
func (cm *ConnectionManagerImpl) handleReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	cm.bus.logger.Info("mqtt client reconnecting",
		"broker", opts.Servers[0],
		"attempt", time.Since(cm.bus.stats.LastReconnect))
}

// newTLSConfig creates a new TLS configuration
func (cm *ConnectionManagerImpl) newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
