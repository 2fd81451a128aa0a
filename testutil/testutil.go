package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/hupe1980/vecmem/distance"
)

// SearchResult is a ground-truth hit.
type SearchResult struct {
	ID    string
	Score float32
}

// RNG is a seeded, goroutine-safe source of test vectors.
type RNG struct {
	mu   sync.Mutex
	src  *rand.PCG
	rand *rand.Rand
	seed int64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	src := rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)
	return &RNG{src: src, rand: rand.New(src), seed: seed}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src.Seed(uint64(r.seed), 0x9e3779b97f4a7c15)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// vectors allocates num vectors over one backing array and fills each with
// gen. The caller holds r.mu.
func (r *RNG) vectors(num, dim int, gen func(vec []float32)) [][]float32 {
	data := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range out {
		out[i] = data[i*dim : (i+1)*dim : (i+1)*dim]
		gen(out[i])
	}
	return out
}

// UniformVectors returns vectors with components in [0, 1).
func (r *RNG) UniformVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vectors(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
	})
}

// UniformRangeVectors returns vectors with components in [-1, 1).
func (r *RNG) UniformRangeVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vectors(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = r.rand.Float32()*2 - 1
		}
	})
}

// UnitVectors returns vectors drawn uniformly from the unit hypersphere.
// Cosine scores between them spread over [-1, 1], which is what recall
// tests of the graph index need.
func (r *RNG) UnitVectors(num, dim int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vectors(num, dim, r.unit)
}

// UnitVector returns a single vector from the unit hypersphere.
func (r *RNG) UnitVector(dim int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec := make([]float32, dim)
	r.unit(vec)
	return vec
}

func (r *RNG) unit(vec []float32) {
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		vec[0], norm = 1, 1
	}
	inv := float32(1 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= inv
	}
}

// ClusteredVectors returns vectors scattered with Gaussian noise of the given
// spread around clusters random unit centroids, assigned round robin.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	centroids := r.vectors(clusters, dim, r.unit)
	i := 0
	return r.vectors(num, dim, func(vec []float32) {
		c := centroids[i%clusters]
		for j := range vec {
			vec[j] = c[j] + float32(r.rand.NormFloat64())*spread
		}
		i++
	})
}

// ID returns the record ID used by the helpers for vector i.
func ID(i int) string { return fmt.Sprintf("vec-%06d", i) }

// ComputeRecall computes recall@k by comparing approximate results against ground truth.
func ComputeRecall(groundTruth, approximate []SearchResult) float64 {
	if len(groundTruth) == 0 || len(approximate) == 0 {
		if len(groundTruth) == 0 && len(approximate) == 0 {
			return 1.0
		}
		return 0.0
	}

	k := min(len(approximate), len(groundTruth))

	truthSet := make(map[string]struct{}, k)
	for i := range k {
		truthSet[groundTruth[i].ID] = struct{}{}
	}

	hits := 0
	for _, r := range approximate[:k] {
		if _, ok := truthSet[r.ID]; ok {
			hits++
		}
	}

	return float64(hits) / float64(k)
}

// BruteForceSearch performs an exact cosine search for ground truth.
// Vector i is reported under ID(i).
func BruteForceSearch(vectors [][]float32, query []float32, k int) []SearchResult {
	results := make([]SearchResult, len(vectors))

	for i, v := range vectors {
		results[i] = SearchResult{ID: ID(i), Score: distance.Cosine(query, v)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}

	return results
}
