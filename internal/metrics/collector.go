package metrics

import (
	"time"

	"lily/internal/stats"
)

// MetricsCollector periodically mirrors runtime statistics into gauges
type MetricsCollector struct {
	metrics  *Metrics
	stats    *stats.StatsCollector
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewMetricsCollector creates a collector that samples stats every interval
func NewMetricsCollector(m *Metrics, s *stats.StatsCollector, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		metrics:  m,
		stats:    s,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sampling loop
func (c *MetricsCollector) Start() {
	go c.run()
}

func (c *MetricsCollector) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stop:
			return
		}
	}
}

func (c *MetricsCollector) collect() {
	if c.stats == nil {
		return
	}
	c.metrics.SetRecordsStored(float64(c.stats.RecordsStored()))
}

// Stop halts the sampling loop and waits for it to exit
func (c *MetricsCollector) Stop() {
	close(c.stop)
	<-c.done
}
