package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken() *MockToken {
	return &MockToken{
		done: make(chan struct{}),
	}
}

func NewMockTokenWithError(err error) *MockToken {
	return &MockToken{
		err:  err,
		done: make(chan struct{}),
	}
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockClient implements mqtt.Client for testing
type MockClient struct {
	publishFunc   func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	subscribeFunc func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	mu            sync.RWMutex
}

func NewMockClient() *MockClient {
	return &MockClient{
		publishFunc: func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
			return NewMockToken()
		},
		subscribeFunc: func(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
			return NewMockToken()
		},
	}
}

func (m *MockClient) Connect() mqtt.Token      { return NewMockToken() }
func (m *MockClient) Disconnect(quiesce uint)  {}
func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishFunc(topic, qos, retained, payload)
}
func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscribeFunc(topic, qos, callback)
}
func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken()
}
func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token              { return NewMockToken() }
func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                   { return true }
func (m *MockClient) IsConnectionOpen() bool                              { return true }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader             { return mqtt.ClientOptionsReader{} }

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 1 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 0 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}
