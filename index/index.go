package index

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

// DefaultLimit is the number of results returned when no limit is given.
const DefaultLimit = 10

// ErrEmptyVector is returned for zero-length vectors.
var ErrEmptyVector = errors.New("vector must not be empty")

// ErrClosed is returned by drivers after Close.
var ErrClosed = errors.New("index is closed")

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidConfiguration reports a rejected option at construction time.
type ErrInvalidConfiguration struct {
	Field  string
	Value  any
	Reason string
}

func (e *ErrInvalidConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// InvalidConfig is shorthand for constructing an ErrInvalidConfiguration.
func InvalidConfig(field string, value any, reason string) error {
	return &ErrInvalidConfiguration{Field: field, Value: value, Reason: reason}
}

// CheckDimension validates a vector length against the collection dimension.
// A zero dimension means the collection has not been sized yet.
func CheckDimension(dim int, v []float32) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(v) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	return nil
}

// SearchOptions controls a similarity query.
type SearchOptions struct {
	// Limit is the maximum number of results. Values <= 0 select DefaultLimit.
	Limit int
	// Threshold drops results scoring below it. Use math.Inf(-1) for none.
	Threshold float32
	// Filter is an equality conjunction over metadata. Nil matches everything.
	Filter *metadata.FilterSet
}

// DefaultSearchOptions returns options with the default limit and no threshold.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Limit: DefaultLimit, Threshold: float32(math.Inf(-1))}
}

// Normalize applies defaults and validates the filter.
func (o SearchOptions) Normalize() (SearchOptions, error) {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if math.IsNaN(float64(o.Threshold)) {
		o.Threshold = float32(math.Inf(-1))
	}
	if err := o.Filter.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

// Index represents a single collection of vector records.
type Index interface {
	// Name identifies the driver, e.g. "flat" or "hnsw".
	Name() string

	// Dimension returns the collection dimension, or 0 before the first insert.
	Dimension() int

	// Add inserts or fully replaces rec. An empty ID is replaced by a generated one.
	Add(ctx context.Context, rec model.Record) (string, error)

	// Get returns a copy of the record. ok is false if the ID is unknown.
	Get(ctx context.Context, id string) (rec model.Record, ok bool, err error)

	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search returns the best matches for query, best first.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]model.Match, error)

	// Count returns the number of records matching filter.
	Count(ctx context.Context, filter *metadata.FilterSet) (int, error)

	// Records returns copies of all records matching filter in insertion order.
	Records(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error)

	// Clear removes every record matching filter and returns how many were removed.
	Clear(ctx context.Context, filter *metadata.FilterSet) (int, error)

	// Config describes the driver settings for export.
	Config() map[string]any

	// Close releases resources held by the driver.
	Close() error
}
