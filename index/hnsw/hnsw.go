// Package hnsw implements the approximate graph index.
//
// The graph is a Hierarchical Navigable Small World structure. Deletes mark
// nodes as tombstones: they keep routing traffic through the graph but are
// never returned. Once tombstones make up RebuildRatio of the arena the graph
// is rebuilt from the surviving records and swapped in under the write lock.
package hnsw

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/queue"
)

// Compile-time check to ensure HNSW satisfies the index contract.
var _ index.Index = (*HNSW)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	// Dimension fixes the vector dimensionality up front.
	// Zero lets the first inserted record establish it.
	Dimension int

	// Metric selects the similarity function.
	Metric distance.Metric

	// M specifies the number of established connections for every new element during construction.
	// Layer 0 allows 2*M connections. The range M=12-48 is ok for most use cases.
	M int

	// EFConstruction is the size of the dynamic candidate list while inserting.
	EFConstruction int

	// EFSearch is the size of the dynamic candidate list while searching.
	// The effective value is max(EFSearch, limit).
	EFSearch int

	// Heuristic indicates whether to use the diversity heuristic (true) or plain
	// nearest selection (false) when choosing neighbours.
	Heuristic bool

	// RebuildRatio is the tombstone fraction of the arena that triggers a rebuild.
	RebuildRatio float64

	// MinRebuildDeletes is the minimum number of tombstones before a rebuild is considered.
	MinRebuildDeletes int

	// ExactSearchThreshold is the filtered candidate count at or below which a
	// search scans the candidates exactly instead of walking the graph.
	ExactSearchThreshold int

	// Seed seeds level generation. Zero selects a time-based seed.
	Seed int64

	// Logger receives rebuild events. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions contains the default configuration options for the graph index.
var DefaultOptions = Options{
	Metric:               distance.MetricCosine,
	M:                    16,
	EFConstruction:       200,
	EFSearch:             64,
	Heuristic:            true,
	RebuildRatio:         0.2,
	MinRebuildDeletes:    64,
	ExactSearchThreshold: 512,
}

// node is a single graph vertex. links[l] holds the neighbours on layer l.
type node struct {
	rec     model.Record
	seq     uint64
	links   [][]uint32
	deleted bool
}

// graph is the arena swapped as a whole by a rebuild.
type graph struct {
	nodes    []*node
	ep       uint32
	maxLevel int
	empty    bool
}

func newGraph() *graph {
	return &graph{empty: true}
}

// HNSW represents the Hierarchical Navigable Small World graph index.
type HNSW struct {
	mu     sync.RWMutex
	opts   Options
	score  distance.Func
	mmax   int     // Max number of connections per element/per layer
	mmax0  int     // Max for the 0 layer
	ml     float64 // Normalization factor for level generation
	rng    *rand.Rand
	logger *slog.Logger

	dim        int
	g          *graph
	ids        map[string]uint32
	postings   *metadata.Postings
	tombstones int
	nextSeq    uint64
	rebuilds   int
	closed     bool
}

// New creates a new graph index.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := validate(opts); err != nil {
		return nil, err
	}

	score, err := opts.Metric.Similarity()
	if err != nil {
		return nil, index.InvalidConfig("Metric", opts.Metric, err.Error())
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &HNSW{
		opts:     opts,
		score:    score,
		mmax:     opts.M,
		mmax0:    2 * opts.M,
		ml:       1 / math.Log(float64(opts.M)),
		rng:      rand.New(rand.NewSource(seed)), // nolint gosec
		logger:   logger,
		dim:      opts.Dimension,
		g:        newGraph(),
		ids:      make(map[string]uint32),
		postings: metadata.NewPostings(),
	}, nil
}

func validate(opts Options) error {
	switch {
	case opts.Dimension < 0:
		return index.InvalidConfig("Dimension", opts.Dimension, "must be >= 0")
	case opts.M < 2:
		// M == 1 would make the level normalisation 1/ln(1) infinite.
		return index.InvalidConfig("M", opts.M, "must be >= 2")
	case opts.EFConstruction < 1:
		return index.InvalidConfig("EFConstruction", opts.EFConstruction, "must be >= 1")
	case opts.EFSearch < 1:
		return index.InvalidConfig("EFSearch", opts.EFSearch, "must be >= 1")
	case !(opts.RebuildRatio > 0 && opts.RebuildRatio <= 1):
		return index.InvalidConfig("RebuildRatio", opts.RebuildRatio, "must be in (0, 1]")
	case opts.MinRebuildDeletes < 0:
		return index.InvalidConfig("MinRebuildDeletes", opts.MinRebuildDeletes, "must be >= 0")
	case opts.ExactSearchThreshold < 0:
		return index.InvalidConfig("ExactSearchThreshold", opts.ExactSearchThreshold, "must be >= 0")
	}
	return nil
}

func (*HNSW) Name() string { return "hnsw" }

// Dimension returns the collection dimension, or 0 before the first insert.
func (h *HNSW) Dimension() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// Config describes the index settings.
func (h *HNSW) Config() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"engine":         h.Name(),
		"metric":         h.opts.Metric.String(),
		"dimension":      h.dim,
		"m":              h.opts.M,
		"efConstruction": h.opts.EFConstruction,
		"efSearch":       h.opts.EFSearch,
		"heuristic":      h.opts.Heuristic,
		"rebuildRatio":   h.opts.RebuildRatio,
	}
}

// dist converts a similarity into a traversal distance (lower is closer).
func (h *HNSW) dist(a, b []float32) float32 {
	return -h.score(a, b)
}

// Add inserts or replaces a record. A replaced record tombstones its old node
// and keeps its original insertion sequence.
func (h *HNSW) Add(ctx context.Context, rec model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", index.ErrClosed
	}
	if err := index.CheckDimension(h.dim, rec.Vector); err != nil {
		return "", err
	}

	rec = rec.Clone()
	if rec.ID == "" {
		rec.ID = model.NewID()
	}
	if h.dim == 0 {
		h.dim = len(rec.Vector)
	}

	seq := h.nextSeq
	if old, ok := h.ids[rec.ID]; ok {
		seq = h.g.nodes[old].seq
		h.tombstoneLocked(old)
	} else {
		h.nextSeq++
	}

	idx := h.insertLocked(h.g, &node{rec: rec, seq: seq})
	h.ids[rec.ID] = idx
	h.postings.Add(idx, rec.Metadata)

	h.maybeRebuildLocked(ctx)

	return rec.ID, nil
}

// randomLevel draws a level from the exponential distribution with scale ml.
func (h *HNSW) randomLevel() int {
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
}

// insertLocked links n into g and returns its arena index.
func (h *HNSW) insertLocked(g *graph, n *node) uint32 {
	level := h.randomLevel()
	n.links = make([][]uint32, level+1)

	idx := uint32(len(g.nodes))
	g.nodes = append(g.nodes, n)

	if g.empty {
		g.ep = idx
		g.maxLevel = level
		g.empty = false
		return idx
	}

	vec := n.rec.Vector

	// Find single shortest path from top layers above our current node, which will be our new starting-point
	curr, currDist := h.greedyDescent(g, vec, g.ep, g.maxLevel, level)

	// For all levels equal and below our current node, find the top (closest) candidates and create a link
	for l := min(level, g.maxLevel); l >= 0; l-- {
		top := h.searchLayer(g, vec, curr, currDist, h.opts.EFConstruction, l, nil)
		candidates := drainAscending(top)

		neighbours := h.selectNeighbours(g, candidates, h.opts.M)
		n.links[l] = make([]uint32, len(neighbours))
		for i, c := range neighbours {
			n.links[l][i] = c.Node
		}

		// Next link the neighbour nodes to our new node, making it visible
		for _, c := range neighbours {
			h.link(g, c.Node, idx, l)
		}

		if len(candidates) > 0 {
			curr, currDist = candidates[0].Node, candidates[0].Distance
		}
	}

	if level > g.maxLevel {
		g.ep = idx
		g.maxLevel = level
	}

	return idx
}

// greedyDescent walks from ep down to (but excluding) layer stop, moving to a
// closer neighbour while one exists.
func (h *HNSW) greedyDescent(g *graph, q []float32, ep uint32, from, stop int) (uint32, float32) {
	curr := ep
	currDist := h.dist(q, g.nodes[curr].rec.Vector)

	for l := from; l > stop; l-- {
		changed := true
		for changed {
			changed = false

			for _, nb := range g.nodes[curr].links[l] {
				d := h.dist(q, g.nodes[nb].rec.Vector)
				if d < currDist {
					curr = nb
					currDist = d
					changed = true
				}
			}
		}
	}

	return curr, currDist
}

// searchLayer runs a beam search of width ef on one layer. Every reachable
// node routes the search; only nodes accepted by accept (all when nil) enter
// the result heap. The returned heap has the farthest result on top.
func (h *HNSW) searchLayer(g *graph, q []float32, ep uint32, epDist float32, ef, level int, accept func(uint32) bool) *queue.PriorityQueue {
	var visited bitset.BitSet
	visited.Set(uint(ep))

	candidates := queue.NewMin(ef)
	candidates.PushItem(ep, epDist)

	top := queue.NewMax(ef + 1)
	lowerBound := float32(math.Inf(1))
	if accept == nil || accept(ep) {
		top.PushItem(ep, epDist)
		lowerBound = epDist
	}

	for candidates.Len() > 0 {
		c := candidates.PopItem()
		if c.Distance > lowerBound && top.Len() >= ef {
			break
		}

		links := g.nodes[c.Node].links
		if level >= len(links) {
			continue
		}

		for _, nb := range links[level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			d := h.dist(q, g.nodes[nb].rec.Vector)
			if top.Len() >= ef && d >= lowerBound {
				continue
			}

			candidates.PushItem(nb, d)
			if accept == nil || accept(nb) {
				top.PushItem(nb, d)
				if top.Len() > ef {
					top.PopItem()
				}
			}
			if top.Len() > 0 {
				lowerBound = top.Top().Distance
			}
		}
	}

	return top
}

// drainAscending empties a max-heap into a slice ordered closest first.
func drainAscending(pq *queue.PriorityQueue) []queue.PriorityQueueItem {
	out := make([]queue.PriorityQueueItem, pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = *pq.PopItem()
	}
	return out
}

// selectNeighbours picks up to m neighbours from candidates ordered closest first.
func (h *HNSW) selectNeighbours(g *graph, candidates []queue.PriorityQueueItem, m int) []queue.PriorityQueueItem {
	if len(candidates) <= m || !h.opts.Heuristic {
		return candidates[:min(m, len(candidates))]
	}

	// A candidate is kept only if it is closer to the base than to every
	// neighbour kept so far. Pruned candidates backfill the remaining slots.
	selected := make([]queue.PriorityQueueItem, 0, m)
	pruned := make([]queue.PriorityQueueItem, 0, len(candidates))

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}

		keep := true
		for _, s := range selected {
			if h.dist(g.nodes[s.Node].rec.Vector, g.nodes[c.Node].rec.Vector) < c.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for i := 0; len(selected) < m && i < len(pruned); i++ {
		selected = append(selected, pruned[i])
	}

	return selected
}

// link adds second to the neighbour list of first on level, pruning the list
// when it overflows.
func (h *HNSW) link(g *graph, first, second uint32, level int) {
	maxConnections := h.mmax
	// HNSW allows double the connections for the bottom level (0)
	if level == 0 {
		maxConnections = h.mmax0
	}

	n := g.nodes[first]
	n.links[level] = append(n.links[level], second)

	if len(n.links[level]) <= maxConnections {
		return
	}

	candidates := make([]queue.PriorityQueueItem, len(n.links[level]))
	for i, id := range n.links[level] {
		candidates[i] = queue.PriorityQueueItem{Node: id, Distance: h.dist(n.rec.Vector, g.nodes[id].rec.Vector)}
	}
	slices.SortFunc(candidates, func(a, b queue.PriorityQueueItem) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})

	kept := h.selectNeighbours(g, candidates, maxConnections)

	// Order by best performing match (index 0) .. lowest
	links := make([]uint32, len(kept))
	for i, c := range kept {
		links[i] = c.Node
	}
	n.links[level] = links
}

// Get returns a copy of the record stored under id.
func (h *HNSW) Get(ctx context.Context, id string) (model.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, false, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	idx, ok := h.ids[id]
	if !ok {
		return model.Record{}, false, nil
	}
	return h.g.nodes[idx].rec.Clone(), true, nil
}

// Delete tombstones id and reports whether a live record was removed.
func (h *HNSW) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.ids[id]
	if !ok {
		return false, nil
	}
	h.tombstoneLocked(idx)
	h.maybeRebuildLocked(ctx)
	return true, nil
}

func (h *HNSW) tombstoneLocked(idx uint32) {
	n := h.g.nodes[idx]
	h.postings.Remove(idx, n.rec.Metadata)
	delete(h.ids, n.rec.ID)
	n.deleted = true
	h.tombstones++
}

func (h *HNSW) maybeRebuildLocked(ctx context.Context) {
	total := len(h.g.nodes)
	if total == 0 || h.tombstones < max(h.opts.MinRebuildDeletes, 1) {
		return
	}
	if float64(h.tombstones) < h.opts.RebuildRatio*float64(total) {
		return
	}
	h.rebuildLocked(ctx)
}

// Rebuild reconstructs the graph from the live records, dropping all tombstones.
func (h *HNSW) Rebuild(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.rebuildLocked(ctx)
	return nil
}

func (h *HNSW) rebuildLocked(ctx context.Context) {
	start := time.Now()
	dropped := h.tombstones

	live := make([]*node, 0, len(h.ids))
	for _, n := range h.g.nodes {
		if !n.deleted {
			live = append(live, n)
		}
	}
	slices.SortFunc(live, func(a, b *node) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})

	g := newGraph()
	ids := make(map[string]uint32, len(live))
	postings := metadata.NewPostings()
	for _, old := range live {
		idx := h.insertLocked(g, &node{rec: old.rec, seq: old.seq})
		ids[old.rec.ID] = idx
		postings.Add(idx, old.rec.Metadata)
	}

	h.g = g
	h.ids = ids
	h.postings = postings
	h.tombstones = 0
	h.rebuilds++

	h.logger.DebugContext(ctx, "graph rebuilt",
		"live", len(live),
		"tombstones_dropped", dropped,
		"duration", time.Since(start),
	)
}

// Search returns the approximate best matches for query.
func (h *HNSW) Search(ctx context.Context, query []float32, opts index.SearchOptions) ([]model.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := index.CheckDimension(h.dim, query); err != nil {
		return nil, err
	}
	if len(h.ids) == 0 {
		return []model.Match{}, nil
	}

	allowed, filtered := h.postings.Compile(opts.Filter)
	if !filtered && !opts.Filter.IsEmpty() {
		return nil, metadata.ErrUnsupportedOperator
	}

	var candidates []index.Candidate
	switch {
	case filtered && allowed.IsEmpty():
		return []model.Match{}, nil
	case filtered && allowed.Cardinality() <= uint64(h.opts.ExactSearchThreshold):
		candidates = h.exactLocked(query, allowed)
	default:
		candidates = h.graphSearchLocked(query, opts.Limit, allowed)
		want := len(h.ids)
		if filtered {
			want = int(allowed.Cardinality())
		}
		// Heavy tombstoning or selective filters can disconnect the beam.
		if len(candidates) < min(opts.Limit, want) {
			candidates = h.exactLocked(query, allowed)
		}
	}

	top := index.NewTopK(opts.Limit)
	for _, c := range candidates {
		if c.Score < opts.Threshold || math.IsNaN(float64(c.Score)) {
			continue
		}
		top.Push(c)
	}

	results := top.Results()
	matches := make([]model.Match, len(results))
	for i, c := range results {
		rec := h.g.nodes[c.Slot].rec.Clone()
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

func (h *HNSW) graphSearchLocked(q []float32, limit int, allowed *metadata.LocalBitmap) []index.Candidate {
	g := h.g
	ef := max(h.opts.EFSearch, limit)

	accept := func(idx uint32) bool {
		if g.nodes[idx].deleted {
			return false
		}
		return allowed == nil || allowed.Contains(idx)
	}

	ep, epDist := h.greedyDescent(g, q, g.ep, g.maxLevel, 0)
	top := h.searchLayer(g, q, ep, epDist, ef, 0, accept)

	out := make([]index.Candidate, 0, top.Len())
	for _, item := range top.Items {
		out = append(out, index.Candidate{Slot: item.Node, Seq: g.nodes[item.Node].seq, Score: -item.Distance})
	}
	return out
}

// exactLocked scores every live node, or only those in allowed.
func (h *HNSW) exactLocked(q []float32, allowed *metadata.LocalBitmap) []index.Candidate {
	g := h.g
	out := make([]index.Candidate, 0, len(h.ids))

	visit := func(idx uint32) {
		n := g.nodes[idx]
		if n.deleted {
			return
		}
		out = append(out, index.Candidate{Slot: idx, Seq: n.seq, Score: h.score(q, n.rec.Vector)})
	}

	if allowed != nil {
		for idx := range allowed.Iterator() {
			visit(idx)
		}
		return out
	}
	for idx := range g.nodes {
		visit(uint32(idx))
	}
	return out
}

// liveLocked returns live nodes matching filter in insertion order.
func (h *HNSW) liveLocked(filter *metadata.FilterSet) []uint32 {
	var out []uint32
	if bm, ok := h.postings.Compile(filter); ok {
		for idx := range bm.Iterator() {
			if !h.g.nodes[idx].deleted {
				out = append(out, idx)
			}
		}
	} else {
		for idx, n := range h.g.nodes {
			if !n.deleted && filter.Matches(n.rec.Metadata) {
				out = append(out, uint32(idx))
			}
		}
	}

	slices.SortFunc(out, func(a, b uint32) int {
		sa, sb := h.g.nodes[a].seq, h.g.nodes[b].seq
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	})
	return out
}

// Count returns the number of live records matching filter.
func (h *HNSW) Count(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if filter.IsEmpty() {
		return len(h.ids), nil
	}
	if bm, ok := h.postings.Compile(filter); ok {
		return int(bm.Cardinality()), nil
	}
	return len(h.liveLocked(filter)), nil
}

// Records returns copies of matching live records in insertion order.
func (h *HNSW) Records(ctx context.Context, filter *metadata.FilterSet) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	idxs := h.liveLocked(filter)
	out := make([]model.Record, len(idxs))
	for i, idx := range idxs {
		out[i] = h.g.nodes[idx].rec.Clone()
	}
	return out, nil
}

// Clear removes matching records. Without a filter the graph is reset,
// including a dimension that was learned from the first insert.
func (h *HNSW) Clear(ctx context.Context, filter *metadata.FilterSet) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if filter.IsEmpty() {
		n := len(h.ids)
		h.g = newGraph()
		h.ids = make(map[string]uint32)
		h.postings.Clear()
		h.tombstones = 0
		h.dim = h.opts.Dimension
		return n, nil
	}

	victims := h.liveLocked(filter)
	for _, idx := range victims {
		h.tombstoneLocked(idx)
	}
	h.maybeRebuildLocked(ctx)
	return len(victims), nil
}

// Close marks the index closed. Reads keep working on the retained data.
func (h *HNSW) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
