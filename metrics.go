package meshgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    cycleHistogram prometheus.Histogram
//	    entityGauge    prometheus.Gauge
//	}
//
//	func (p *PrometheusCollector) RecordModification(duration time.Duration, err error) {
//	    p.cycleHistogram.Observe(duration.Seconds())
//	    // ... record error state, etc.
//	}
type MetricsCollector interface {
	// RecordModification is called after each modification cycle.
	// duration covers BeginModification through EndModification; err is nil
	// on success.
	RecordModification(duration time.Duration, err error)

	// RecordEntityAdded is called whenever an entity comes into existence
	// locally, including ghost copies received from peers.
	RecordEntityAdded()

	// RecordEntityDeleted is called whenever a local entity is destroyed.
	RecordEntityDeleted()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordModification(time.Duration, error) {}
func (NoopMetricsCollector) RecordEntityAdded()                      {}
func (NoopMetricsCollector) RecordEntityDeleted()                    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ModificationCount  atomic.Int64
	ModificationErrors atomic.Int64
	ModificationNanos  atomic.Int64
	EntitiesAdded      atomic.Int64
	EntitiesDeleted    atomic.Int64
}

// RecordModification implements MetricsCollector.
func (b *BasicMetricsCollector) RecordModification(duration time.Duration, err error) {
	b.ModificationCount.Add(1)
	b.ModificationNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ModificationErrors.Add(1)
	}
}

// RecordEntityAdded implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEntityAdded() {
	b.EntitiesAdded.Add(1)
}

// RecordEntityDeleted implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEntityDeleted() {
	b.EntitiesDeleted.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ModificationCount:  b.ModificationCount.Load(),
		ModificationErrors: b.ModificationErrors.Load(),
		ModificationAvg:    b.getAvgModificationNanos(),
		EntitiesAdded:      b.EntitiesAdded.Load(),
		EntitiesDeleted:    b.EntitiesDeleted.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgModificationNanos() int64 {
	count := b.ModificationCount.Load()
	if count == 0 {
		return 0
	}
	return b.ModificationNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ModificationCount  int64
	ModificationErrors int64
	ModificationAvg    int64
	EntitiesAdded      int64
	EntitiesDeleted    int64
}
