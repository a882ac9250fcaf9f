package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"lily/internal/stats"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	assert.NoError(t, err)

	// Registering the same instruments twice must fail
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetricsSetConnectionStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)

	m.SetBusConnectionStatus(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.busConnected))

	m.SetBusConnectionStatus(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.busConnected))
}

func TestMetricsIncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)

	// Test various counter increments
	m.IncEventsIngested("webhook")
	m.IncEventsIngested("queue")
	m.IncRulesProcessed("processed")
	m.IncRulesProcessed("error")
	m.IncPublishTotal("nats", "success")
	m.IncPublishTotal("nats", "error")
	m.IncStoreOperations("put", "success")
	m.ObserveProcessDuration("transform", 0.002)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventsIngestedTotal.WithLabelValues("webhook")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rulesProcessedTotal.WithLabelValues("processed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.publishTotal.WithLabelValues("nats", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.storeOperationsTotal.WithLabelValues("put", "success")))
}

func TestMetricsCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)

	s := stats.NewStatsCollector()
	s.RecordStored()
	s.RecordStored()

	collector := NewMetricsCollector(m, s, 10*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.recordsStored) == 2
	}, time.Second, 5*time.Millisecond, "collector should mirror the stored record count")
}
