package backend

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAdd is called after each add.
	RecordAdd(duration time.Duration, err error)

	// RecordSeed is called after each bulk load.
	// count is the number of records attempted, failed is the number that failed.
	RecordSeed(count, failed int, duration time.Duration)

	// RecordSearch is called after each search.
	RecordSearch(limit int, duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)

	// RecordClear is called after each clear with the number of removed records.
	RecordClear(removed int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(time.Duration, error)         {}
func (NoopMetricsCollector) RecordSeed(int, int, time.Duration)     {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)      {}
func (NoopMetricsCollector) RecordClear(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	AddCount         atomic.Int64
	AddErrors        atomic.Int64
	AddTotalNanos    atomic.Int64
	SeedCount        atomic.Int64
	SeedItems        atomic.Int64
	SeedFailed       atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	ClearCount       atomic.Int64
	ClearRemoved     atomic.Int64
	ClearErrors      atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordSeed implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSeed(count, failed int, _ time.Duration) {
	b.SeedCount.Add(1)
	b.SeedItems.Add(int64(count))
	b.SeedFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear(removed int, _ time.Duration, err error) {
	b.ClearCount.Add(1)
	b.ClearRemoved.Add(int64(removed))
	if err != nil {
		b.ClearErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:       b.AddCount.Load(),
		AddErrors:      b.AddErrors.Load(),
		AddAvgNanos:    avg(b.AddTotalNanos.Load(), b.AddCount.Load()),
		SeedCount:      b.SeedCount.Load(),
		SeedItems:      b.SeedItems.Load(),
		SeedFailed:     b.SeedFailed.Load(),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		ClearCount:     b.ClearCount.Load(),
		ClearRemoved:   b.ClearRemoved.Load(),
		ClearErrors:    b.ClearErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount       int64
	AddErrors      int64
	AddAvgNanos    int64
	SeedCount      int64
	SeedItems      int64
	SeedFailed     int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	DeleteCount    int64
	DeleteErrors   int64
	ClearCount     int64
	ClearRemoved   int64
	ClearErrors    int64
}
