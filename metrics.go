package vecmem

import "github.com/hupe1980/vecmem/backend"

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    addCounter      prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordAdd(duration time.Duration, err error) {
//	    p.addCounter.Inc()
//	}
type MetricsCollector = backend.MetricsCollector

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector = backend.NoopMetricsCollector

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector = backend.BasicMetricsCollector

// BasicMetricsStats is a point-in-time copy of BasicMetricsCollector.
type BasicMetricsStats = backend.BasicMetricsStats
