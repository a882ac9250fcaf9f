package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lily/internal/bus"
	"lily/internal/logger"
	"lily/internal/metrics"
	"lily/internal/rule"
	"lily/internal/stats"
	"lily/internal/storage"
)

// RuleEventType is the event type under which transformed rules are
// stored and published
const RuleEventType = "security_rule"

// Result reports the outcome of one processed rule event
type Result struct {
	EventID         string                  `json:"event_id"`
	Status          string                  `json:"status"`
	DownstreamRules map[string]*rule.Policy `json:"downstream_rules"`
}

// Processor runs raw security rules through the transformation service,
// persists the canonical form and publishes it to the bus.
type Processor struct {
	service *rule.Service
	store   storage.MetadataStore
	pub     bus.Publisher
	busName string
	logger  *logger.Logger
	stats   *stats.StatsCollector
	metrics *metrics.Metrics
}

// NewProcessor creates an outbound processor
func NewProcessor(service *rule.Service, store storage.MetadataStore, pub bus.Publisher,
	busName string, log *logger.Logger, statsCollector *stats.StatsCollector,
	metricsService *metrics.Metrics) *Processor {
	return &Processor{
		service: service,
		store:   store,
		pub:     pub,
		busName: busName,
		logger:  log,
		stats:   statsCollector,
		metrics: metricsService,
	}
}

// ProcessRuleEvent transforms one raw rule, stores the canonical form
// and publishes it. A publish failure surfaces to the caller but does
// not undo the store.
func (p *Processor) ProcessRuleEvent(ctx context.Context, raw map[string]interface{}) (*Result, error) {
	start := time.Now()
	p.stats.IncEventsReceived()

	processed, err := p.service.Process(raw)
	if err != nil {
		p.stats.IncEventsFailed()
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncRulesProcessed("error")
		})
		return nil, err
	}
	p.stats.IncRulesTransformed()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncRulesProcessed("success")
	})

	for target, msg := range processed.TargetErrors {
		p.logger.Error("failed to format rule for target",
			"target", target,
			"error", msg,
			"ruleID", processed.Rule.RuleID)
	}

	payload, err := processed.Rule.AsMap()
	if err != nil {
		p.stats.IncEventsFailed()
		return nil, fmt.Errorf("failed to encode rule: %w", err)
	}

	record := &storage.Record{
		EventID:   processed.Rule.RuleID,
		EventType: RuleEventType,
		Timestamp: processed.Rule.Metadata.CreatedAt,
		Source:    rule.MetadataSource,
		Payload:   payload,
	}
	eventID, err := p.store.Put(ctx, record)
	if err != nil {
		p.stats.IncEventsFailed()
		p.stats.IncStoreErrors()
		p.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncStoreOperations("put", "error")
		})
		return nil, fmt.Errorf("failed to store rule: %w", err)
	}
	p.stats.RecordStored()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncStoreOperations("put", "success")
	})

	detail, err := json.Marshal(payload)
	if err != nil {
		p.stats.IncEventsFailed()
		return nil, fmt.Errorf("failed to encode rule detail: %w", err)
	}
	if err := p.pub.PublishEvent(ctx, bus.Event{
		Source:     bus.EventSource,
		DetailType: RuleEventType,
		Detail:     detail,
		Bus:        p.busName,
	}); err != nil {
		p.stats.IncEventsFailed()
		return nil, fmt.Errorf("failed to publish rule event: %w", err)
	}
	p.stats.IncEventsPublished()

	p.stats.IncEventsProcessed()
	p.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.ObserveProcessDuration("outbound", time.Since(start).Seconds())
	})
	p.logger.Info("processed rule event",
		"ruleID", eventID,
		"targets", len(processed.Downstream))

	return &Result{
		EventID:         eventID,
		Status:          "processed",
		DownstreamRules: processed.Downstream,
	}, nil
}

// HandleMessage adapts outbound queue deliveries, whose body is the raw
// rule JSON, to ProcessRuleEvent
func (p *Processor) HandleMessage(ctx context.Context, msg bus.Message) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		return fmt.Errorf("failed to decode rule payload: %w", err)
	}

	if _, err := p.ProcessRuleEvent(ctx, raw); err != nil {
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
