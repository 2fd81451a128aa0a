// Package recency provides bounded, append-only stores of recent records.
//
// A Store keeps records in arrival order and drops the oldest ones once its
// capacity is reached. The hybrid engine uses it as the short-term history
// that is merged with semantic search results.
package recency

import (
	"context"
	"errors"

	"github.com/hupe1980/vecmem/model"
)

// DefaultCapacity bounds a store created with a non-positive capacity.
const DefaultCapacity = 100

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("recency store is closed")

// Store is an ordered, FIFO-trimmed record history.
type Store interface {
	// Append adds rec as the newest entry, evicting the oldest beyond capacity.
	Append(ctx context.Context, rec model.Record) error

	// Recent returns the newest n entries, oldest first.
	Recent(ctx context.Context, n int) ([]model.Record, error)

	// All returns every retained entry, oldest first.
	All(ctx context.Context) ([]model.Record, error)

	// Len returns the number of retained entries.
	Len(ctx context.Context) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Remove atomically deletes the entries match selects and returns how
	// many were removed. Survivors keep their order.
	Remove(ctx context.Context, match func(model.Record) bool) (int, error)

	// Capacity returns the maximum number of retained entries.
	Capacity() int
}
