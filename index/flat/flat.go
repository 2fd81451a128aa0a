// Package flat provides the exact brute-force index.
//
// Every search scores all live records (or the slots selected by a metadata
// posting list) and is therefore the correctness baseline for the graph index.
package flat

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension fixes the vector dimensionality up front.
	// Zero lets the first inserted record establish it.
	Dimension int

	// Metric selects the similarity function.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension: 0,
	Metric:    distance.MetricCosine,
}

type entry struct {
	rec model.Record
	seq uint64
}

// Flat is an exact in-memory index. Writers take the exclusive lock, so a
// search always observes whole records.
type Flat struct {
	mu       sync.RWMutex
	opts     Options
	score    distance.Func
	dim      int
	slots    []*entry // nil entries are free
	free     []uint32
	ids      map[string]uint32
	postings *metadata.Postings
	nextSeq  uint64
	closed   bool
}

// New creates a new instance of the flat index.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension < 0 {
		return nil, index.InvalidConfig("Dimension", opts.Dimension, "must be >= 0")
	}

	score, err := opts.Metric.Similarity()
	if err != nil {
		return nil, index.InvalidConfig("Metric", opts.Metric, err.Error())
	}

	return &Flat{
		opts:     opts,
		score:    score,
		dim:      opts.Dimension,
		ids:      make(map[string]uint32),
		postings: metadata.NewPostings(),
	}, nil
}

func (*Flat) Name() string { return "flat" }

// Dimension returns the collection dimension, or 0 before the first insert.
func (f *Flat) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dim
}

// Config describes the index settings.
func (f *Flat) Config() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]any{
		"engine":    f.Name(),
		"metric":    f.opts.Metric.String(),
		"dimension": f.dim,
	}
}

// Add inserts or replaces a record. A replaced record keeps its position in
// insertion order.
func (f *Flat) Add(ctx context.Context, rec model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return "", index.ErrClosed
	}
	if err := index.CheckDimension(f.dim, rec.Vector); err != nil {
		return "", err
	}

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = model.NewID()
	}
	if f.dim == 0 {
		f.dim = len(rec.Vector)
	}

	if slot, ok := f.ids[rec.ID]; ok {
		old := f.slots[slot]
		f.postings.Remove(slot, old.rec.Metadata)
		f.slots[slot] = &entry{rec: rec, seq: old.seq}
		f.postings.Add(slot, rec.Metadata)
		return rec.ID, nil
	}

	slot := f.allocate()
	f.slots[slot] = &entry{rec: rec, seq: f.nextSeq}
	f.nextSeq++
	f.ids[rec.ID] = slot
	f.postings.Add(slot, rec.Metadata)

	return rec.ID, nil
}

func (f *Flat) allocate() uint32 {
	if n := len(f.free); n > 0 {
		slot := f.free[n-1]
		f.free = f.free[:n-1]
		return slot
	}
	f.slots = append(f.slots, nil)
	return uint32(len(f.slots) - 1)
}

// Get returns a copy of the record stored under id.
func (f *Flat) Get(ctx context.Context, id string) (model.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	slot, ok := f.ids[id]
	if !ok {
		return model.Record{}, false, nil
	}
	return f.slots[slot].rec.Clone(), true, nil
}

// Delete removes id and reports whether a record was removed.
func (f *Flat) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := f.ids[id]
	if !ok {
		return false, nil
	}
	f.removeLocked(slot)
	return true, nil
}

func (f *Flat) removeLocked(slot uint32) {
	e := f.slots[slot]
	f.postings.Remove(slot, e.rec.Metadata)
	delete(f.ids, e.rec.ID)
	f.slots[slot] = nil
	f.free = append(f.free, slot)
}

// Search scores every candidate slot against query.
func (f *Flat) Search(ctx context.Context, query []float32, opts index.SearchOptions) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := index.CheckDimension(f.dim, query); err != nil {
		return nil, err
	}
	if len(f.ids) == 0 {
		return []model.Match{}, nil
	}

	top := index.NewTopK(opts.Limit)
	f.forEachLocked(opts.Filter, func(slot uint32, e *entry) {
		s := f.score(query, e.rec.Vector)
		if s < opts.Threshold || math.IsNaN(float64(s)) {
			return
		}
		top.Push(index.Candidate{Slot: slot, Seq: e.seq, Score: s})
	})

	results := top.Results()
	matches := make([]model.Match, len(results))
	for i, c := range results {
		rec := f.slots[c.Slot].rec.Clone()
		matches[i] = model.Match{
			ID:       rec.ID,
			Score:    c.Score,
			Metadata: rec.Metadata,
			Vector:   rec.Vector,
			Text:     rec.Text,
		}
	}
	return matches, nil
}

// forEachLocked visits live slots matching filter. The posting list answers
// equality filters without touching unrelated records.
func (f *Flat) forEachLocked(filter *metadata.FilterSet, fn func(slot uint32, e *entry)) {
	if bm, ok := f.postings.Compile(filter); ok {
		for slot := range bm.Iterator() {
			if e := f.slots[slot]; e != nil {
				fn(slot, e)
			}
		}
		return
	}

	for slot, e := range f.slots {
		if e == nil || !filter.Matches(e.rec.Metadata) {
			continue
		}
		fn(uint32(slot), e)
	}
}

// Count returns the number of records matching filter.
func (f *Flat) Count(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if filter.IsEmpty() {
		return len(f.ids), nil
	}
	n := 0
	f.forEachLocked(filter, func(uint32, *entry) { n++ })
	return n, nil
}

// Records returns copies of matching records in insertion order.
func (f *Flat) Records(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	entries := make([]*entry, 0, len(f.ids))
	f.forEachLocked(filter, func(_ uint32, e *entry) { entries = append(entries, e) })
	slices.SortFunc(entries, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	out := make([]model.Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec.Clone()
	}
	return out, nil
}

// Clear removes matching records. Without a filter the index is reset,
// including a dimension that was learned from the first insert.
func (f *Flat) Clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if filter.IsEmpty() {
		n := len(f.ids)
		f.slots = nil
		f.free = nil
		f.ids = make(map[string]uint32)
		f.postings.Clear()
		f.dim = f.opts.Dimension
		return n, nil
	}

	var victims []uint32
	f.forEachLocked(filter, func(slot uint32, _ *entry) { victims = append(victims, slot) })
	for _, slot := range victims {
		f.removeLocked(slot)
	}
	return len(victims), nil
}

// Close marks the index closed. Reads keep working on the retained data.
func (f *Flat) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
