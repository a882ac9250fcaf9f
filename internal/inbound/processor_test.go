package inbound

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lily/config"
	"lily/internal/bus"
	"lily/internal/inbound/montecarlo"
	"lily/internal/logger"
	"lily/internal/rule"
	"lily/internal/stats"
	"lily/internal/storage"
)

type capturePublisher struct {
	events   []bus.Event
	raw      []bus.Message
	failWith error
}

func (c *capturePublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.raw = append(c.raw, bus.Message{Subject: subject, Payload: payload})
	return nil
}

func (c *capturePublisher) PublishEvent(ctx context.Context, event bus.Event) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func newTestProcessor(t *testing.T, baseURL string) (*Processor, *storage.MemoryStore, *capturePublisher, *stats.StatsCollector) {
	t.Helper()

	client := montecarlo.NewClient(&config.MonteCarloConfig{
		APIKey:        "test-key",
		WebhookSecret: "test-secret",
		BaseURL:       baseURL,
	}, logger.NewNop())

	store := storage.NewMemoryStore()
	pub := &capturePublisher{}
	statsCollector := stats.NewStatsCollector()
	p := NewProcessor(client, store, pub, "atlan-lily-bus", logger.NewNop(), statsCollector, nil)
	return p, store, pub, statsCollector
}

// deadServerURL yields a URL nothing listens on, so enrichment fails fast
func deadServerURL(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	return server.URL
}

func webhookBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":        "evt-1",
		"type":      "incident",
		"timestamp": "2024-01-15T10:00:00Z",
		"data":      map[string]interface{}{"id": "inc-1", "severity": "high"},
	})
	if err != nil {
		t.Fatalf("marshal webhook body: %v", err)
	}
	return body
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestProcessWebhookEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/incidents/inc-1":
			w.Write([]byte(`{"id":"inc-1","status":"resolved","updated_at":"2024-01-15T11:00:00Z"}`))
		case "/incidents/inc-1/assets":
			w.Write([]byte(`{"assets":[{"id":"table-1"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p, store, pub, statsCollector := newTestProcessor(t, server.URL)
	body := webhookBody(t)

	result, err := p.ProcessWebhook(context.Background(), body, sign("test-secret", body))
	if err != nil {
		t.Fatalf("ProcessWebhook() error = %v", err)
	}
	if result.EventID != "evt-1" || result.Status != "processed" {
		t.Errorf("result = %+v, want evt-1 processed", result)
	}

	record, err := store.Get(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record.EventType != "incident" || record.Source != "monte_carlo" {
		t.Errorf("record = %+v, identity fields wrong", record)
	}
	if _, ok := record.Payload["details"]; !ok {
		t.Error("stored payload should carry the enrichment")
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	event := pub.events[0]
	if event.Source != "atlan.lily" || event.DetailType != "incident" || event.Bus != "atlan-lily-bus" {
		t.Errorf("event envelope = %+v, wrong identity", event)
	}

	var detail montecarlo.Event
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.EventID != "evt-1" {
		t.Errorf("detail event_id = %q, want evt-1", detail.EventID)
	}
	if _, ok := detail.Payload["details"]; ok {
		t.Error("published detail should carry the payload as delivered, not the enrichment")
	}

	if statsCollector.EventsReceived != 1 || statsCollector.EventsProcessed != 1 {
		t.Errorf("stats received/processed = %d/%d, want 1/1",
			statsCollector.EventsReceived, statsCollector.EventsProcessed)
	}
	if statsCollector.RecordsStored() != 1 {
		t.Errorf("records stored = %d, want 1", statsCollector.RecordsStored())
	}
}

func TestProcessWebhookBadSignature(t *testing.T) {
	p, store, pub, statsCollector := newTestProcessor(t, deadServerURL(t))
	body := webhookBody(t)

	_, err := p.ProcessWebhook(context.Background(), body, "bad-signature")
	var vErr *rule.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("ProcessWebhook() error = %v, want *ValidationError", err)
	}
	if vErr.Field != "signature" {
		t.Errorf("error names field %q, want signature", vErr.Field)
	}

	if _, err := store.Get(context.Background(), "evt-1"); !errors.Is(err, storage.ErrRecordNotFound) {
		t.Error("nothing should be stored for a rejected webhook")
	}
	if len(pub.events) != 0 {
		t.Error("nothing should be published for a rejected webhook")
	}
	if statsCollector.EventsFailed != 1 {
		t.Errorf("events failed = %d, want 1", statsCollector.EventsFailed)
	}
}

func TestProcessWebhookMalformedBody(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, deadServerURL(t))
	body := []byte("{not json")

	if _, err := p.ProcessWebhook(context.Background(), body, sign("test-secret", body)); err == nil {
		t.Error("ProcessWebhook() expected error for malformed body")
	}
}

func TestProcessWebhookMissingField(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, deadServerURL(t))
	body := []byte(`{"id":"evt-1","timestamp":"2024-01-15T10:00:00Z","data":{}}`)

	_, err := p.ProcessWebhook(context.Background(), body, sign("test-secret", body))
	var vErr *rule.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("ProcessWebhook() error = %v, want *ValidationError", err)
	}
	if vErr.Field != "type" {
		t.Errorf("error names field %q, want type", vErr.Field)
	}
}

func TestProcessWebhookEnrichmentFailureDegrades(t *testing.T) {
	p, store, pub, _ := newTestProcessor(t, deadServerURL(t))
	body := webhookBody(t)

	result, err := p.ProcessWebhook(context.Background(), body, sign("test-secret", body))
	if err != nil {
		t.Fatalf("ProcessWebhook() error = %v, enrichment failure should not fail ingestion", err)
	}
	if result.Status != "processed" {
		t.Errorf("status = %q, want processed", result.Status)
	}

	record, err := store.Get(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := record.Payload["details"]; ok {
		t.Error("payload should be stored as delivered when enrichment fails")
	}
	if record.Payload["severity"] != "high" {
		t.Errorf("payload = %v, original data lost", record.Payload)
	}
	if len(pub.events) != 1 {
		t.Errorf("published %d events, want 1", len(pub.events))
	}
}

func TestProcessWebhookPublishFailureKeepsRecord(t *testing.T) {
	p, store, pub, _ := newTestProcessor(t, deadServerURL(t))
	pub.failWith = errors.New("bus is down")
	body := webhookBody(t)

	if _, err := p.ProcessWebhook(context.Background(), body, sign("test-secret", body)); err == nil {
		t.Fatal("ProcessWebhook() expected error when publishing fails")
	}

	if _, err := store.Get(context.Background(), "evt-1"); err != nil {
		t.Errorf("Get() error = %v, publish failure should not undo the store", err)
	}
}

func TestHandleMessage(t *testing.T) {
	p, store, _, _ := newTestProcessor(t, deadServerURL(t))
	body := webhookBody(t)

	envelope, err := json.Marshal(map[string]interface{}{
		"payload":   json.RawMessage(body),
		"signature": sign("test-secret", body),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	if err := p.HandleMessage(context.Background(), bus.Message{
		Subject: "lily.inbound.events",
		Payload: envelope,
	}); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if _, err := store.Get(context.Background(), "evt-1"); err != nil {
		t.Errorf("Get() error = %v, queue delivery should store the event", err)
	}
}

func TestHandleMessageBadEnvelope(t *testing.T) {
	p, _, _, _ := newTestProcessor(t, deadServerURL(t))

	err := p.HandleMessage(context.Background(), bus.Message{
		Subject: "lily.inbound.events",
		Payload: []byte("{broken"),
	})
	if err == nil {
		t.Error("HandleMessage() expected error for an undecodable envelope")
	}
}
