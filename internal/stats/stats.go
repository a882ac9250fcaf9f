package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector manages application-wide statistics. Counter fields are
// only safe to touch through atomic operations.
type StatsCollector struct {
	StartTime        time.Time
	EventsReceived   uint64
	EventsProcessed  uint64
	EventsFailed     uint64
	RulesTransformed uint64
	EventsPublished  uint64
	StoreErrors      uint64

	recordsStored int64
	lastUpdate    int64 // unix nanos
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		StartTime:  time.Now(),
		lastUpdate: time.Now().UnixNano(),
	}
}

func (s *StatsCollector) touch() {
	atomic.StoreInt64(&s.lastUpdate, time.Now().UnixNano())
}

// LastUpdate returns the time of the most recent counter change
func (s *StatsCollector) LastUpdate() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.lastUpdate))
}

func (s *StatsCollector) IncEventsReceived() {
	atomic.AddUint64(&s.EventsReceived, 1)
	s.touch()
}

func (s *StatsCollector) IncEventsProcessed() {
	atomic.AddUint64(&s.EventsProcessed, 1)
	s.touch()
}

func (s *StatsCollector) IncEventsFailed() {
	atomic.AddUint64(&s.EventsFailed, 1)
	s.touch()
}

func (s *StatsCollector) IncRulesTransformed() {
	atomic.AddUint64(&s.RulesTransformed, 1)
	s.touch()
}

func (s *StatsCollector) IncEventsPublished() {
	atomic.AddUint64(&s.EventsPublished, 1)
	s.touch()
}

func (s *StatsCollector) IncStoreErrors() {
	atomic.AddUint64(&s.StoreErrors, 1)
	s.touch()
}

// RecordStored tracks a record added to the metadata store
func (s *StatsCollector) RecordStored() {
	atomic.AddInt64(&s.recordsStored, 1)
	s.touch()
}

// RecordDeleted tracks a record removed from the metadata store
func (s *StatsCollector) RecordDeleted() {
	atomic.AddInt64(&s.recordsStored, -1)
	s.touch()
}

// RecordsStored returns the current stored record count
func (s *StatsCollector) RecordsStored() int64 {
	return atomic.LoadInt64(&s.recordsStored)
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	uptime := time.Since(s.StartTime)
	return map[string]interface{}{
		"uptime":            uptime.String(),
		"events_received":   atomic.LoadUint64(&s.EventsReceived),
		"events_processed":  atomic.LoadUint64(&s.EventsProcessed),
		"events_failed":     atomic.LoadUint64(&s.EventsFailed),
		"rules_transformed": atomic.LoadUint64(&s.RulesTransformed),
		"events_published":  atomic.LoadUint64(&s.EventsPublished),
		"store_errors":      atomic.LoadUint64(&s.StoreErrors),
		"records_stored":    atomic.LoadInt64(&s.recordsStored),
		"last_update":       s.LastUpdate(),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate calculates event processing rate
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.EventsProcessed)) / uptime
}
