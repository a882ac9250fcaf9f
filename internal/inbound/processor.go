package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lily/internal/bus"
	"lily/internal/inbound/montecarlo"
	"lily/internal/logger"
	"lily/internal/metrics"
	"lily/internal/rule"
	"lily/internal/stats"
	"lily/internal/storage"
)

// Result reports the outcome of one ingested webhook
type Result struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// Processor ingests Monte Carlo webhook events: verify, parse, enrich,
// store, publish.
type Processor struct {
	client  *montecarlo.Client
	store   storage.MetadataStore
	pub     bus.Publisher
	busName string
	logger  *logger.Logger
	stats   *stats.StatsCollector
	metrics *metrics.Metrics
}

// NewProcessor creates an inbound processor
func NewProcessor(client *montecarlo.Client, store storage.MetadataStore, pub bus.Publisher,
	busName string, log *logger.Logger, statsCollector *stats.StatsCollector,
	metricsService *metrics.Metrics) *Processor {
	return &Processor{
		client:  client,
		store:   store,
		pub:     pub,
		busName: busName,
		logger:  log,
		stats:   statsCollector,
		metrics: metricsService,
	}
}

// ProcessWebhook handles one raw webhook delivery. The stored record
// carries the enriched payload; the published event carries the parsed
// event as received, so downstream consumers see what the source sent.
func (p *Processor) ProcessWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	start := time.Now()
	p.stats.IncEventsReceived()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncEventsIngested(montecarlo.Source)
	})

	if !p.client.VerifySignature(body, signature) {
		p.stats.IncEventsFailed()
		return nil, &rule.ValidationError{Field: "signature", Message: "invalid webhook signature"}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		p.stats.IncEventsFailed()
		return nil, fmt.Errorf("failed to decode webhook body: %w", err)
	}

	event, err := p.client.ParseWebhookEvent(payload)
	if err != nil {
		p.stats.IncEventsFailed()
		return nil, err
	}

	// Enrichment needs the Monte Carlo API; when it is unreachable the
	// event still gets ingested with the payload as delivered.
	enriched, err := p.client.EnrichIncident(ctx, event.Payload)
	if err != nil {
		p.logger.Warn("failed to enrich incident, storing payload as delivered",
			"error", err,
			"eventID", event.EventID)
		enriched = event.Payload
	}

	record := &storage.Record{
		EventID:   event.EventID,
		EventType: event.EventType,
		Timestamp: event.Timestamp,
		Source:    event.Source,
		Payload:   enriched,
	}
	eventID, err := p.store.Put(ctx, record)
	if err != nil {
		p.stats.IncEventsFailed()
		p.stats.IncStoreErrors()
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncStoreOperations("put", "error")
		})
		return nil, fmt.Errorf("failed to store event: %w", err)
	}
	p.stats.RecordStored()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncStoreOperations("put", "success")
	})

	detail, err := json.Marshal(event)
	if err != nil {
		p.stats.IncEventsFailed()
		return nil, fmt.Errorf("failed to encode event detail: %w", err)
	}
	if err := p.pub.PublishEvent(ctx, bus.Event{
		Source:     bus.EventSource,
		DetailType: event.EventType,
		Detail:     detail,
		Bus:        p.busName,
	}); err != nil {
		p.stats.IncEventsFailed()
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}
	p.stats.IncEventsPublished()

	p.stats.IncEventsProcessed()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.ObserveProcessDuration("inbound", time.Since(start).Seconds())
	})
	p.logger.Info("processed webhook event",
		"eventID", eventID,
		"eventType", event.EventType)

	return &Result{EventID: eventID, Status: "processed"}, nil
}

// envelope is the webhook delivery as it travels the inbound queue
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// HandleMessage adapts inbound queue deliveries to ProcessWebhook
func (p *Processor) HandleMessage(ctx context.Context, msg bus.Message) error {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("failed to decode inbound envelope: %w", err)
	}

	if _, err := p.ProcessWebhook(ctx, env.Payload, env.Signature); err != nil {
		return err
	}
	return nil
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (p *Processor) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}
