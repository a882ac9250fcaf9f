package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewStatsCollector verifies the initialization of a new StatsCollector
func TestNewStatsCollector(t *testing.T) {
	collector := NewStatsCollector()

	assert.NotNil(t, collector, "StatsCollector should be created")
	assert.WithinDuration(t, time.Now(), collector.StartTime, 100*time.Millisecond, "StartTime should be close to current time")
	assert.WithinDuration(t, time.Now(), collector.LastUpdate(), 100*time.Millisecond, "LastUpdate should be close to current time")

	// Check initial stat values are zero
	assert.Zero(t, collector.EventsReceived, "EventsReceived should be zero")
	assert.Zero(t, collector.EventsProcessed, "EventsProcessed should be zero")
	assert.Zero(t, collector.EventsFailed, "EventsFailed should be zero")
	assert.Zero(t, collector.RulesTransformed, "RulesTransformed should be zero")
	assert.Zero(t, collector.EventsPublished, "EventsPublished should be zero")
	assert.Zero(t, collector.StoreErrors, "StoreErrors should be zero")
	assert.Zero(t, collector.RecordsStored(), "RecordsStored should be zero")
}

// TestIncrements verifies the counter increment methods
func TestIncrements(t *testing.T) {
	collector := NewStatsCollector()
	beforeUpdate := collector.LastUpdate()

	collector.IncEventsReceived()
	collector.IncEventsReceived()
	collector.IncEventsProcessed()
	collector.IncEventsFailed()
	collector.IncRulesTransformed()
	collector.IncEventsPublished()
	collector.IncStoreErrors()

	assert.Equal(t, uint64(2), collector.EventsReceived, "EventsReceived should match")
	assert.Equal(t, uint64(1), collector.EventsProcessed, "EventsProcessed should match")
	assert.Equal(t, uint64(1), collector.EventsFailed, "EventsFailed should match")
	assert.Equal(t, uint64(1), collector.RulesTransformed, "RulesTransformed should match")
	assert.Equal(t, uint64(1), collector.EventsPublished, "EventsPublished should match")
	assert.Equal(t, uint64(1), collector.StoreErrors, "StoreErrors should match")

	assert.False(t, collector.LastUpdate().Before(beforeUpdate), "LastUpdate should be more recent")
}

// TestRecordGauge verifies stored record tracking moves in both directions
func TestRecordGauge(t *testing.T) {
	collector := NewStatsCollector()

	collector.RecordStored()
	collector.RecordStored()
	collector.RecordStored()
	collector.RecordDeleted()

	assert.Equal(t, int64(2), collector.RecordsStored(), "RecordsStored should track puts minus deletes")
}

// TestConcurrentIncrements verifies counters are safe under concurrency
func TestConcurrentIncrements(t *testing.T) {
	collector := NewStatsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.IncEventsReceived()
			collector.IncEventsProcessed()
			collector.RecordStored()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(50), collector.EventsReceived, "EventsReceived should match")
	assert.Equal(t, uint64(50), collector.EventsProcessed, "EventsProcessed should match")
	assert.Equal(t, int64(50), collector.RecordsStored(), "RecordsStored should match")
}

// TestGetStats verifies the GetStats method
func TestGetStats(t *testing.T) {
	collector := NewStatsCollector()

	collector.IncEventsReceived()
	collector.IncEventsProcessed()
	collector.IncRulesTransformed()
	collector.RecordStored()

	stats := collector.GetStats()

	assert.Contains(t, stats, "uptime", "Should have uptime")
	assert.Contains(t, stats, "events_received", "Should have events_received")
	assert.Contains(t, stats, "events_processed", "Should have events_processed")
	assert.Contains(t, stats, "events_failed", "Should have events_failed")
	assert.Contains(t, stats, "rules_transformed", "Should have rules_transformed")
	assert.Contains(t, stats, "events_published", "Should have events_published")
	assert.Contains(t, stats, "store_errors", "Should have store_errors")
	assert.Contains(t, stats, "records_stored", "Should have records_stored")
	assert.Contains(t, stats, "last_update", "Should have last_update")

	assert.Equal(t, uint64(1), stats["events_received"], "events_received should match")
	assert.Equal(t, uint64(1), stats["events_processed"], "events_processed should match")
	assert.Equal(t, uint64(1), stats["rules_transformed"], "rules_transformed should match")
	assert.Equal(t, int64(1), stats["records_stored"], "records_stored should match")
}

// TestGetStatsJSON verifies JSON marshaling of stats
func TestGetStatsJSON(t *testing.T) {
	jsonStats, err := func() ([]byte, error) {
		c := NewStatsCollector()
		c.IncEventsReceived()
		c.IncEventsProcessed()
		return c.GetStatsJSON()
	}()

	require.NoError(t, err, "GetStatsJSON should not return an error")

	var statsMap map[string]interface{}
	err = json.Unmarshal(jsonStats, &statsMap)
	require.NoError(t, err, "Should be able to unmarshal JSON")

	assert.Equal(t, float64(1), statsMap["events_received"], "events_received should match")
	assert.Equal(t, float64(1), statsMap["events_processed"], "events_processed should match")
}

// TestCalculateRate verifies event processing rate calculation
func TestCalculateRate(t *testing.T) {
	testCases := []struct {
		name           string
		processed      uint64
		processingTime time.Duration
		expectedRange  struct {
			min float64
			max float64
		}
	}{
		{
			name:           "Zero processing",
			processed:      0,
			processingTime: 1 * time.Second,
			expectedRange:  struct{ min, max float64 }{0, 0.001},
		},
		{
			name:           "Normal processing",
			processed:      100,
			processingTime: 10 * time.Second,
			expectedRange:  struct{ min, max float64 }{9.9, 10.1},
		},
		{
			name:           "Low time processing",
			processed:      50,
			processingTime: 100 * time.Millisecond,
			expectedRange:  struct{ min, max float64 }{400, 510},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Create a new collector with a fixed start time
			fixedStartTime := time.Now().Add(-tc.processingTime)
			collector := &StatsCollector{
				StartTime:       fixedStartTime,
				EventsProcessed: tc.processed,
			}

			rate := collector.CalculateRate()

			assert.GreaterOrEqual(t, rate, tc.expectedRange.min, "Rate should be greater than or equal to minimum")
			assert.LessOrEqual(t, rate, tc.expectedRange.max, "Rate should be less than or equal to maximum")
		})
	}
}
