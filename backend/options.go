package backend

import (
	"github.com/hupe1980/vecmem/internal/logging"
)

// DefaultKey names a collection created without WithKey.
const DefaultKey = "default"

type options struct {
	key             string
	logger          *logging.Logger
	metrics         MetricsCollector
	seedConcurrency int
	seedRateLimit   float64
}

// Option configures a Collection.
type Option func(*options)

// WithKey sets the collection name recorded in exports.
func WithKey(key string) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector sets a metrics collector.
//
// If nil is passed, metrics collection is disabled.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithSeedConcurrency bounds the number of concurrent adds in SeedAsync.
// Values below 1 select 1.
func WithSeedConcurrency(n int) Option {
	return func(o *options) {
		o.seedConcurrency = n
	}
}

// WithSeedRateLimit caps SeedAsync at opsPerSec adds per second.
// Zero disables the limit. Useful for remote drivers with request quotas.
func WithSeedRateLimit(opsPerSec float64) Option {
	return func(o *options) {
		o.seedRateLimit = opsPerSec
	}
}

func defaultOptions() options {
	return options{
		key:             DefaultKey,
		metrics:         NoopMetricsCollector{},
		seedConcurrency: 4,
	}
}
