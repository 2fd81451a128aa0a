// Package chromem adapts the embedded chromem-go vector database to the
// index contract.
//
// chromem-go normalises embeddings and only filters on string metadata. The
// driver therefore keeps the original record in a JSON payload next to the
// document and mirrors every top-level metadata field as the canonical key of
// its typed value, so equality filters keep their exact semantics. Zero
// vectors cannot be normalised and are rejected.
package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

// Compile-time check to ensure Index satisfies the index contract.
var _ index.Index = (*Index)(nil)

// ErrZeroVector is returned when adding a vector with zero magnitude.
var ErrZeroVector = errors.New("chromem: zero-magnitude vectors cannot be stored")

const (
	payloadKey  = "_vecmem"
	fieldPrefix = "m."
)

// Options contains configuration options for the chromem driver.
type Options struct {
	// Dimension fixes the vector dimensionality up front.
	Dimension int

	// Collection is the chromem collection name.
	Collection string

	// PersistDir enables chromem's file persistence. Empty keeps data in memory.
	// Persistent collections need a configured Dimension.
	PersistDir string

	// Compress gzips persisted documents.
	Compress bool
}

// DefaultOptions contains the default configuration options for the chromem driver.
var DefaultOptions = Options{
	Collection: "vecmem",
}

type payload struct {
	Vector   []float32      `json:"v"`
	Metadata map[string]any `json:"m,omitempty"`
	Seq      uint64         `json:"s"`
}

// Index stores records in a chromem-go collection.
type Index struct {
	mu      sync.RWMutex
	opts    Options
	db      *chromem.DB
	coll    *chromem.Collection
	dim     int
	nextSeq uint64
	closed  bool
}

// New creates a chromem-backed index.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension < 0 {
		return nil, index.InvalidConfig("Dimension", opts.Dimension, "must be >= 0")
	}
	if opts.Collection == "" {
		return nil, index.InvalidConfig("Collection", opts.Collection, "must not be empty")
	}
	if opts.PersistDir != "" && opts.Dimension == 0 {
		return nil, index.InvalidConfig("Dimension", opts.Dimension, "must be set for persistent collections")
	}

	var db *chromem.DB
	if opts.PersistDir == "" {
		db = chromem.NewDB()
	} else {
		var err error
		if db, err = chromem.NewPersistentDB(opts.PersistDir, opts.Compress); err != nil {
			return nil, fmt.Errorf("chromem: open %s: %w", opts.PersistDir, err)
		}
	}

	coll, err := db.GetOrCreateCollection(opts.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection %s: %w", opts.Collection, err)
	}

	ix := &Index{opts: opts, db: db, coll: coll, dim: opts.Dimension}
	if err := ix.restore(context.Background()); err != nil {
		return nil, err
	}
	return ix, nil
}

// restore recovers the sequence counter of a persisted collection.
func (ix *Index) restore(ctx context.Context) error {
	docs, err := ix.docsLocked(ctx, nil)
	if err != nil {
		return err
	}
	for _, d := range docs {
		ix.nextSeq = max(ix.nextSeq, d.p.Seq+1)
	}
	return nil
}

func (*Index) Name() string { return "chromem" }

// Dimension returns the collection dimension, or 0 before the first insert.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Config describes the driver settings.
func (ix *Index) Config() map[string]any {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return map[string]any{
		"engine":     ix.Name(),
		"metric":     distance.MetricCosine.String(),
		"dimension":  ix.dim,
		"collection": ix.opts.Collection,
		"persistent": ix.opts.PersistDir != "",
	}
}

// Add inserts or replaces rec. A replaced record keeps its insertion position.
func (ix *Index) Add(ctx context.Context, rec model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return "", index.ErrClosed
	}
	if err := index.CheckDimension(ix.dim, rec.Vector); err != nil {
		return "", err
	}
	if distance.Magnitude(rec.Vector) == 0 {
		return "", ErrZeroVector
	}

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = model.NewID()
	}

	seq := ix.nextSeq
	if old, ok, err := ix.getLocked(ctx, rec.ID); err != nil {
		return "", err
	} else if ok {
		seq = old.p.Seq
	}

	doc, err := toDocument(rec, seq)
	if err != nil {
		return "", err
	}
	if err := ix.coll.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("chromem: add %s: %w", rec.ID, err)
	}

	if seq == ix.nextSeq {
		ix.nextSeq++
	}
	if ix.dim == 0 {
		ix.dim = len(rec.Vector)
	}
	return rec.ID, nil
}

// Get returns a copy of the record stored under id.
func (ix *Index) Get(ctx context.Context, id string) (model.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, false, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	d, ok, err := ix.getLocked(ctx, id)
	if err != nil || !ok {
		return model.Record{}, false, err
	}
	return d.rec, true, nil
}

// Delete removes id and reports whether a record was removed.
func (ix *Index) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok, err := ix.getLocked(ctx, id); err != nil || !ok {
		return false, err
	}
	if err := ix.coll.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("chromem: delete %s: %w", id, err)
	}
	return true, nil
}

// Search runs chromem's exhaustive cosine query and orders ties by insertion.
func (ix *Index) Search(ctx context.Context, query []float32, opts index.SearchOptions) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := index.CheckDimension(ix.dim, query); err != nil {
		return nil, err
	}
	if opts.Filter.Contradicts() {
		return []model.Match{}, nil
	}

	var docs []doc
	if distance.Magnitude(query) == 0 {
		// Cosine against a zero vector is 0 for every record.
		docs, err = ix.docsLocked(ctx, opts.Filter)
	} else {
		docs, err = ix.queryLocked(ctx, query, opts.Filter)
	}
	if err != nil {
		return nil, err
	}

	top := index.NewTopK(opts.Limit)
	for i, d := range docs {
		s := d.score
		if s < opts.Threshold || math.IsNaN(float64(s)) {
			continue
		}
		top.Push(index.Candidate{Slot: uint32(i), Seq: d.p.Seq, Score: s})
	}

	results := top.Results()
	matches := make([]model.Match, len(results))
	for i, c := range results {
		rec := docs[c.Slot].rec
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

// Count returns the number of records matching filter.
func (ix *Index) Count(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if filter.IsEmpty() {
		return ix.coll.Count(), nil
	}
	docs, err := ix.docsLocked(ctx, filter)
	return len(docs), err
}

// Records returns copies of matching records in insertion order.
func (ix *Index) Records(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs, err := ix.docsLocked(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, len(docs))
	for i, d := range docs {
		out[i] = d.rec
	}
	return out, nil
}

// Clear removes matching records. Without a filter the collection is
// recreated and a learned dimension is released.
func (ix *Index) Clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if filter.IsEmpty() {
		n := ix.coll.Count()
		if err := ix.db.DeleteCollection(ix.opts.Collection); err != nil {
			return 0, fmt.Errorf("chromem: clear: %w", err)
		}
		coll, err := ix.db.CreateCollection(ix.opts.Collection, nil, nil)
		if err != nil {
			return 0, fmt.Errorf("chromem: clear: %w", err)
		}
		ix.coll = coll
		ix.dim = ix.opts.Dimension
		return n, nil
	}

	docs, err := ix.docsLocked(ctx, filter)
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.rec.ID
	}
	if err := ix.coll.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("chromem: clear: %w", err)
	}
	return len(ids), nil
}

// Close marks the index closed.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	return nil
}

type doc struct {
	rec   model.Record
	p     payload
	score float32
}

func (ix *Index) getLocked(ctx context.Context, id string) (doc, bool, error) {
	if id == "" {
		return doc{}, false, nil
	}
	d, err := ix.coll.GetByID(ctx, id)
	if err != nil {
		// GetByID reports a missing document as an error.
		return doc{}, false, nil
	}
	out, err := fromDocument(d.ID, d.Metadata, d.Content)
	if err != nil {
		return doc{}, false, err
	}
	return out, true, nil
}

// queryLocked scores every document matching filter.
func (ix *Index) queryLocked(ctx context.Context, query []float32, filter *metadata.FilterSet) ([]doc, error) {
	n := ix.coll.Count()
	if n == 0 {
		return nil, nil
	}
	results, err := ix.coll.QueryEmbedding(ctx, query, n, where(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}
	docs := make([]doc, 0, len(results))
	for _, r := range results {
		d, err := fromDocument(r.ID, r.Metadata, r.Content)
		if err != nil {
			return nil, err
		}
		d.score = r.Similarity
		docs = append(docs, d)
	}
	return docs, nil
}

// docsLocked lists documents matching filter in insertion order.
func (ix *Index) docsLocked(ctx context.Context, filter *metadata.FilterSet) ([]doc, error) {
	if filter.Contradicts() {
		return nil, nil
	}
	n := ix.coll.Count()
	if n == 0 {
		return nil, nil
	}

	// chromem has no listing API. Any unit probe returns every document that
	// passes the where clause when nResults covers the collection.
	dim := ix.dim
	if dim == 0 {
		return nil, nil
	}
	probe := make([]float32, dim)
	probe[0] = 1

	docs, err := ix.queryLocked(ctx, probe, filter)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].score = 0
	}
	slices.SortFunc(docs, func(a, b doc) int {
		switch {
		case a.p.Seq < b.p.Seq:
			return -1
		case a.p.Seq > b.p.Seq:
			return 1
		}
		return 0
	})
	return docs, nil
}

func toDocument(rec model.Record, seq uint64) (chromem.Document, error) {
	raw, err := json.Marshal(payload{Vector: rec.Vector, Metadata: rec.Metadata, Seq: seq})
	if err != nil {
		return chromem.Document{}, fmt.Errorf("chromem: encode %s: %w", rec.ID, err)
	}

	md := make(map[string]string, len(rec.Metadata)+1)
	md[payloadKey] = string(raw)
	for k, v := range rec.Metadata {
		tv, err := metadata.FromAny(v)
		if err != nil {
			continue
		}
		md[fieldPrefix+k] = tv.Key()
	}

	return chromem.Document{
		ID:        rec.ID,
		Metadata:  md,
		Embedding: rec.Vector,
		Content:   rec.Text,
	}, nil
}

func fromDocument(id string, md map[string]string, content string) (doc, error) {
	var p payload
	if err := json.Unmarshal([]byte(md[payloadKey]), &p); err != nil {
		return doc{}, fmt.Errorf("chromem: decode %s: %w", id, err)
	}
	return doc{
		rec: model.Record{
			ID:       id,
			Vector:   p.Vector,
			Metadata: p.Metadata,
			Text:     content,
		},
		p: p,
	}, nil
}

// where translates an equality conjunction into chromem's string filter.
func where(filter *metadata.FilterSet) map[string]string {
	if filter.IsEmpty() {
		return nil
	}
	out := make(map[string]string, len(filter.Filters))
	for _, f := range filter.Filters {
		out[fieldPrefix+f.Key] = f.Value.Key()
	}
	return out
}
