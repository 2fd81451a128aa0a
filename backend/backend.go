package backend

import (
	"context"

	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

// Backend is the contract shared by every vector store.
type Backend interface {
	// Type names the underlying driver, e.g. "flat" or "pgvector".
	Type() string

	// Tenant returns the scope bound at construction.
	Tenant() Tenant

	// Add inserts or replaces rec and returns its id.
	Add(ctx context.Context, rec model.Record) (string, error)

	// Get returns the record with id. ok is false when it does not exist in scope.
	Get(ctx context.Context, id string) (rec model.Record, ok bool, err error)

	// Delete removes id and reports whether a record was removed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search returns the best matches for query, best first.
	Search(ctx context.Context, query []float32, opts ...SearchOption) ([]model.Match, error)

	// Count returns the number of records in scope that match filter.
	Count(ctx context.Context, filter *metadata.FilterSet) (int, error)

	// GetAll returns the records in scope that match filter, in insertion order.
	GetAll(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error)

	// Clear removes the records in scope that match filter.
	Clear(ctx context.Context, filter *metadata.FilterSet) (int, error)

	// Seed adds recs one by one, isolating per-record failures.
	Seed(ctx context.Context, recs []model.Record) SeedResult

	// SeedAsync runs Seed on a bounded worker pool. The channel yields one result.
	SeedAsync(ctx context.Context, recs []model.Record) <-chan SeedResult

	// Export captures the records in scope.
	Export(ctx context.Context) (*Snapshot, error)

	// Import replaces the records in scope with those of snap.
	Import(ctx context.Context, snap *Snapshot) error
}

// SearchOption configures a single search.
type SearchOption func(o *index.SearchOptions)

// WithLimit caps the number of results. Non-positive values select the default of 10.
func WithLimit(limit int) SearchOption {
	return func(o *index.SearchOptions) {
		o.Limit = limit
	}
}

// WithThreshold drops results scoring below threshold.
func WithThreshold(threshold float32) SearchOption {
	return func(o *index.SearchOptions) {
		o.Threshold = threshold
	}
}

// WithFilter restricts results to records whose metadata matches filter.
func WithFilter(filter *metadata.FilterSet) SearchOption {
	return func(o *index.SearchOptions) {
		o.Filter = filter
	}
}

// SeedResult summarises a bulk load.
type SeedResult struct {
	Added  int
	Failed int
	// Errors holds one entry per failed record.
	Errors []error
}

// Snapshot is the portable export layout of one scope.
type Snapshot struct {
	Type           string         `json:"type"`
	Key            string         `json:"key"`
	UserID         string         `json:"userId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
	Records        []model.Record `json:"records"`
}
