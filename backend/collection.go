package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/internal/logging"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/resource"
)

// writeStripes is the number of id-striped locks serialising scoped writes.
const writeStripes = 64

// shared is the state common to a Collection and all of its tenant handles.
type shared struct {
	idx     index.Index
	key     string
	logger  *logging.Logger
	metrics MetricsCollector
	rc      *resource.Controller
	stripes [writeStripes]sync.Mutex
}

func (s *shared) lockID(id string) func() {
	mu := &s.stripes[xxhash.Sum64String(id)%writeStripes]
	mu.Lock()
	return mu.Unlock
}

// Collection implements Backend over an index.Index driver.
// The zero Tenant sees the whole collection.
type Collection struct {
	*shared
	tenant Tenant
	log    *logging.Logger
}

// Compile time check to ensure Collection satisfies the Backend interface.
var _ Backend = (*Collection)(nil)

// New wraps idx. The Collection takes ownership of idx and closes it on Close.
func New(idx index.Index, optFns ...Option) (*Collection, error) {
	if idx == nil {
		return nil, index.InvalidConfig("index", nil, "must not be nil")
	}

	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	if o.key == "" {
		return nil, index.InvalidConfig("key", o.key, "must not be empty")
	}
	if o.seedRateLimit < 0 {
		return nil, index.InvalidConfig("seedRateLimit", o.seedRateLimit, "must not be negative")
	}

	logger := logging.OrNoop(o.logger).WithBackend(idx.Name())

	s := &shared{
		idx:     idx,
		key:     o.key,
		logger:  logger,
		metrics: o.metrics,
		rc: resource.NewController(resource.Config{
			MaxWorkers: int64(max(1, o.seedConcurrency)),
			OpsPerSec:  o.seedRateLimit,
		}),
	}

	return &Collection{shared: s, log: logger}, nil
}

// ForTenant returns a handle scoped to t that shares the driver.
func (c *Collection) ForTenant(t Tenant) *Collection {
	return &Collection{
		shared: c.shared,
		tenant: t,
		log:    c.logger.WithTenant(t.UserID, t.ConversationID),
	}
}

// Index returns the underlying driver.
func (c *Collection) Index() index.Index { return c.idx }

// Key returns the collection name.
func (c *Collection) Key() string { return c.key }

// Type implements Backend.
func (c *Collection) Type() string { return c.idx.Name() }

// Tenant implements Backend.
func (c *Collection) Tenant() Tenant { return c.tenant }

// Dimension returns the collection dimension, or 0 before the first add.
func (c *Collection) Dimension() int { return c.idx.Dimension() }

// Add implements Backend. A scoped handle stamps its tenant keys into the
// stored metadata and refuses to overwrite a record owned by another tenant.
func (c *Collection) Add(ctx context.Context, rec model.Record) (string, error) {
	start := time.Now()
	id, err := c.add(ctx, rec)
	c.metrics.RecordAdd(time.Since(start), err)
	c.log.LogAdd(ctx, id, len(rec.Vector), err)
	return id, err
}

func (c *Collection) add(ctx context.Context, rec model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := index.CheckDimension(c.idx.Dimension(), rec.Vector); err != nil {
		return "", err
	}

	if c.tenant.IsZero() {
		id, err := c.idx.Add(ctx, rec)
		return id, wrapFailure(c.Type(), "add", err)
	}

	if rec.ID == "" {
		rec.ID = model.NewID()
	}
	rec.Metadata = c.tenant.Stamp(rec.Metadata)

	unlock := c.lockID(rec.ID)
	defer unlock()

	existing, ok, err := c.idx.Get(ctx, rec.ID)
	if err != nil {
		return "", wrapFailure(c.Type(), "add", err)
	}
	if ok && !c.tenant.Owns(existing.Metadata) {
		return "", fmt.Errorf("%w: id %q", ErrTenantConflict, rec.ID)
	}

	id, err := c.idx.Add(ctx, rec)
	return id, wrapFailure(c.Type(), "add", err)
}

// Get implements Backend.
func (c *Collection) Get(ctx context.Context, id string) (model.Record, bool, error) {
	rec, ok, err := c.idx.Get(ctx, id)
	if err != nil {
		return model.Record{}, false, wrapFailure(c.Type(), "get", err)
	}
	if !ok || !c.tenant.Owns(rec.Metadata) {
		return model.Record{}, false, nil
	}
	return rec, true, nil
}

// Delete implements Backend. Records outside the scope are reported as missing.
func (c *Collection) Delete(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := c.delete(ctx, id)
	c.metrics.RecordDelete(time.Since(start), err)
	c.log.LogDelete(ctx, id, err)
	return ok, err
}

func (c *Collection) delete(ctx context.Context, id string) (bool, error) {
	if c.tenant.IsZero() {
		ok, err := c.idx.Delete(ctx, id)
		return ok, wrapFailure(c.Type(), "delete", err)
	}

	unlock := c.lockID(id)
	defer unlock()

	if _, ok, err := c.Get(ctx, id); err != nil || !ok {
		return false, err
	}
	ok, err := c.idx.Delete(ctx, id)
	return ok, wrapFailure(c.Type(), "delete", err)
}

// Search implements Backend.
func (c *Collection) Search(ctx context.Context, query []float32, opts ...SearchOption) ([]model.Match, error) {
	o := index.DefaultSearchOptions()
	for _, fn := range opts {
		fn(&o)
	}

	start := time.Now()
	matches, err := c.search(ctx, query, o)
	c.metrics.RecordSearch(o.Limit, time.Since(start), err)
	c.log.LogSearch(ctx, o.Limit, len(matches), err)
	return matches, err
}

func (c *Collection) search(ctx context.Context, query []float32, o index.SearchOptions) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	if err := index.CheckDimension(c.idx.Dimension(), query); err != nil {
		return nil, err
	}

	o.Filter = c.scope(o.Filter)
	if o.Filter.Contradicts() {
		return []model.Match{}, nil
	}

	matches, err := c.idx.Search(ctx, query, o)
	if err != nil {
		return nil, wrapFailure(c.Type(), "search", err)
	}
	return matches, nil
}

// Count implements Backend.
func (c *Collection) Count(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	fs := c.scope(filter)
	if fs.Contradicts() {
		return 0, nil
	}
	n, err := c.idx.Count(ctx, fs)
	return n, wrapFailure(c.Type(), "count", err)
}

// GetAll implements Backend.
func (c *Collection) GetAll(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	fs := c.scope(filter)
	if fs.Contradicts() {
		return []model.Record{}, nil
	}
	recs, err := c.idx.Records(ctx, fs)
	if err != nil {
		return nil, wrapFailure(c.Type(), "getAll", err)
	}
	return recs, nil
}

// Clear implements Backend. Clearing an unscoped collection without a filter
// also releases a dimension learned from the first add.
func (c *Collection) Clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	start := time.Now()
	n, err := c.clear(ctx, filter)
	c.metrics.RecordClear(n, time.Since(start), err)
	if err == nil {
		c.log.DebugContext(ctx, "clear completed", "removed", n)
	}
	return n, err
}

func (c *Collection) clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	fs := c.scope(filter)
	if fs.Contradicts() {
		return 0, nil
	}
	n, err := c.idx.Clear(ctx, fs)
	return n, wrapFailure(c.Type(), "clear", err)
}

// Close closes the underlying driver. Tenant handles share it, so Close is
// meant for the owning Collection only.
func (c *Collection) Close() error {
	return c.idx.Close()
}

// scope conjoins the tenant filter with filter.
func (c *Collection) scope(filter *metadata.FilterSet) *metadata.FilterSet {
	return c.tenant.Filter().And(filter)
}
