package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventSource identifies this service as the publisher of its events
const EventSource = "atlan.lily"

// Event is the envelope published for every outbound notification. Detail
// carries the event body verbatim; Bus names the logical bus the event
// belongs to and never appears in the wire payload.
type Event struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail_type"`
	Detail     json.RawMessage `json:"detail"`
	Bus        string          `json:"-"`
}

// Subject returns the canonical subject an event publishes to
func (e Event) Subject() string {
	return e.Bus + "." + e.DetailType
}

// Message is a single unit of consumed traffic
type Message struct {
	Subject string
	Payload []byte
}

// Handler processes one consumed message. Returning an error signals the
// transport that delivery failed.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus
type Publisher interface {
	// Publish sends a raw payload to an explicit subject
	Publish(ctx context.Context, subject string, payload []byte) error
	// PublishEvent sends an event to its canonical subject
	PublishEvent(ctx context.Context, event Event) error
	Close() error
}

// Consumer receives messages from the bus. Each message reaches exactly
// one handler invocation; handler errors are logged and do not stop the
// consume loop.
type Consumer interface {
	Subscribe(ctx context.Context, subject string, handler Handler) error
	Close() error
}

// Bus is a connected transport able to both publish and consume
type Bus interface {
	Publisher
	Consumer
	Connected() bool
}

// BusStats tracks transport-level counters
type BusStats struct {
	MessagesPublished uint64
	MessagesReceived  uint64
	Errors            uint64
	LastReconnect     time.Time
}

// EncodeEvent validates an event and renders its subject and wire payload
func EncodeEvent(event Event) (string, []byte, error) {
	if event.Bus == "" {
		return "", nil, fmt.Errorf("event bus name is required")
	}
	if event.DetailType == "" {
		return "", nil, fmt.Errorf("event detail type is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return event.Subject(), payload, nil
}

// DecodeEvent parses a wire payload produced by EncodeEvent
func DecodeEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

// ToMQTTTopic converts a dotted subject to MQTT's slash form
func ToMQTTTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// FromMQTTTopic converts an MQTT topic back to the dotted subject form
func FromMQTTTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}
