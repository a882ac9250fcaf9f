package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus instruments for the service
type Metrics struct {
	eventsIngestedTotal  *prometheus.CounterVec
	rulesProcessedTotal  *prometheus.CounterVec
	publishTotal         *prometheus.CounterVec
	storeOperationsTotal *prometheus.CounterVec

	busConnected  prometheus.Gauge
	recordsStored prometheus.Gauge

	processDuration *prometheus.HistogramVec
}

// NewMetrics creates all instruments and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		eventsIngestedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lily_events_ingested_total",
			Help: "Total number of events ingested, labeled by source",
		}, []string{"source"}),
		rulesProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lily_rules_processed_total",
			Help: "Total number of rules run through the pipeline, labeled by status",
		}, []string{"status"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lily_publish_total",
			Help: "Total number of events published to the bus, labeled by transport and status",
		}, []string{"transport", "status"}),
		storeOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lily_store_operations_total",
			Help: "Total number of metadata store operations, labeled by operation and status",
		}, []string{"op", "status"}),
		busConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lily_bus_connected",
			Help: "Whether the event bus connection is up (1) or down (0)",
		}),
		recordsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lily_records_stored",
			Help: "Number of records currently tracked in the metadata store",
		}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lily_process_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	collectors := []prometheus.Collector{
		m.eventsIngestedTotal,
		m.rulesProcessedTotal,
		m.publishTotal,
		m.storeOperationsTotal,
		m.busConnected,
		m.recordsStored,
		m.processDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) IncEventsIngested(source string) {
	m.eventsIngestedTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) IncRulesProcessed(status string) {
	m.rulesProcessedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncPublishTotal(transport, status string) {
	m.publishTotal.WithLabelValues(transport, status).Inc()
}

func (m *Metrics) IncStoreOperations(op, status string) {
	m.storeOperationsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) SetBusConnectionStatus(connected bool) {
	if connected {
		m.busConnected.Set(1)
	} else {
		m.busConnected.Set(0)
	}
}

func (m *Metrics) SetRecordsStored(count float64) {
	m.recordsStored.Set(count)
}

func (m *Metrics) ObserveProcessDuration(stage string, seconds float64) {
	m.processDuration.WithLabelValues(stage).Observe(seconds)
}
