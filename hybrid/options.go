package hybrid

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/internal/logging"
)

// GetAllMode selects how GetAll picks its semantic records.
type GetAllMode string

const (
	// ModeUnion takes the oldest semantic records in insertion order.
	ModeUnion GetAllMode = "union"
	// ModeSemantic takes the top hits of a search for the empty query.
	ModeSemantic GetAllMode = "semantic"
)

// Options contains configuration options for the hybrid engine.
type Options struct {
	// RecentLimit is the number of recent messages considered per read.
	RecentLimit int

	// SemanticLimit is the number of semantic records GetAll returns.
	SemanticLimit int

	// TotalLimit caps GetAll and is the default GetRelevant limit.
	TotalLimit int

	// RecentWeight is the share of GetRelevant slots reserved for recent messages.
	RecentWeight float64

	// GetAllMode selects union or semantic GetAll.
	GetAllMode GetAllMode

	// Key names the engine in snapshots and traces.
	Key string

	// Tenant scopes every operation. The zero tenant sees everything.
	Tenant backend.Tenant

	Logger *logging.Logger

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// DefaultOptions contains the default configuration options for the hybrid engine.
var DefaultOptions = Options{
	RecentLimit:   10,
	SemanticLimit: 10,
	TotalLimit:    20,
	RecentWeight:  0.5,
	GetAllMode:    ModeUnion,
	Key:           backend.DefaultKey,
}

// WithTenant binds the engine to t.
func WithTenant(t backend.Tenant) func(o *Options) {
	return func(o *Options) {
		o.Tenant = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

func (o Options) validate() error {
	if o.RecentLimit < 0 {
		return index.InvalidConfig("RecentLimit", o.RecentLimit, "must be >= 0")
	}
	if o.SemanticLimit < 0 {
		return index.InvalidConfig("SemanticLimit", o.SemanticLimit, "must be >= 0")
	}
	if o.TotalLimit <= 0 {
		return index.InvalidConfig("TotalLimit", o.TotalLimit, "must be > 0")
	}
	if o.RecentWeight < 0 || o.RecentWeight > 1 || o.RecentWeight != o.RecentWeight {
		return index.InvalidConfig("RecentWeight", o.RecentWeight, "must be within [0, 1]")
	}
	switch o.GetAllMode {
	case ModeUnion, ModeSemantic:
	default:
		return index.InvalidConfig("GetAllMode", o.GetAllMode, "must be union or semantic")
	}
	if o.Key == "" {
		return index.InvalidConfig("Key", o.Key, "must not be empty")
	}
	return nil
}
