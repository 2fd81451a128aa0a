package embed

import (
	"context"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
)

// Cached memoises an Embedder. Keys are the xxhash of the text and the cost
// of an entry is the byte size of its vector.
type Cached struct {
	next  Embedder
	cache *ristretto.Cache
}

// Compile-time check to ensure Cached satisfies the Embedder interface.
var _ Embedder = (*Cached)(nil)

// NewCached wraps next with a cache bounded to maxCost bytes of vectors.
func NewCached(next Embedder, maxCost int64) (*Cached, error) {
	if next == nil {
		return nil, fmt.Errorf("embed: cached embedder needs a delegate")
	}
	if maxCost <= 0 {
		maxCost = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		// 10x the number of items expected when full, assuming 1536-dim vectors.
		NumCounters: max(1000, maxCost/(1536*4)*10),
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create cache: %w", err)
	}

	return &Cached{next: next, cache: cache}, nil
}

// Embed implements Embedder. Cached vectors are copied before they are returned.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := xxhash.Sum64String(text)
	if v, ok := c.cache.Get(key); ok {
		return slices.Clone(v.([]float32)), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}

	c.cache.Set(key, slices.Clone(vec), int64(len(vec)*4))
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() { c.cache.Wait() }

// Hits returns the number of cache hits.
func (c *Cached) Hits() uint64 { return c.cache.Metrics.Hits() }

// Misses returns the number of cache misses.
func (c *Cached) Misses() uint64 { return c.cache.Metrics.Misses() }

// Close stops the cache goroutines.
func (c *Cached) Close() { c.cache.Close() }
