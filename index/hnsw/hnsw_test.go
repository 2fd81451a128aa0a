package hnsw

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/index/flat"
	"github.com/hupe1980/vecmem/index/indextest"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
	"github.com/hupe1980/vecmem/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestCases struct {
	VectorSize int
	VectorDim  int

	M         int
	EF        int
	Heuristic bool
	K         int

	Precision float64
}

func TestHNSWContract(t *testing.T) {
	indextest.Run(t, func(t *testing.T, dim int) index.Index {
		h, err := New(func(o *Options) {
			o.Dimension = dim
			o.Seed = 4711
		})
		require.NoError(t, err)
		return h
	}, indextest.Options{})
}

func TestNew(t *testing.T) {
	h, err := New(func(o *Options) {
		o.Dimension = 16
		o.M = 8
		o.EFConstruction = 200
	})
	require.NoError(t, err)

	assert.Equal(t, 8, h.opts.M)
	assert.Equal(t, 8, h.mmax)
	assert.Equal(t, 16, h.mmax0)
	assert.Equal(t, 200, h.opts.EFConstruction)
	assert.InDelta(t, 1/math.Log(8), h.ml, 1e-12)
}

func TestNewInvalidOptions(t *testing.T) {
	tests := []struct {
		name  string
		field string
		fn    func(o *Options)
	}{
		{"M", "M", func(o *Options) { o.M = 1 }},
		{"EFConstruction", "EFConstruction", func(o *Options) { o.EFConstruction = 0 }},
		{"EFSearch", "EFSearch", func(o *Options) { o.EFSearch = 0 }},
		{"RebuildRatio zero", "RebuildRatio", func(o *Options) { o.RebuildRatio = 0 }},
		{"RebuildRatio above one", "RebuildRatio", func(o *Options) { o.RebuildRatio = 1.5 }},
		{"Dimension", "Dimension", func(o *Options) { o.Dimension = -3 }},
		{"Metric", "Metric", func(o *Options) { o.Metric = distance.Metric(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fn)
			var ic *index.ErrInvalidConfiguration
			require.ErrorAs(t, err, &ic)
			assert.Equal(t, tt.field, ic.Field)
		})
	}
}

func TestValidateInsertSearch(t *testing.T) {
	ctx := context.Background()
	tests := []TestCases{
		{
			VectorSize: 1000,
			VectorDim:  16,
			M:          8,
			EF:         200,
			Heuristic:  true,
			Precision:  0.95,
			K:          10,
		},
		// Non-heuristic (simple) selection has lower accuracy than heuristic
		{
			VectorSize: 1000,
			VectorDim:  16,
			M:          8,
			EF:         200,
			Heuristic:  false,
			Precision:  0.9,
			K:          10,
		},
		{
			VectorSize: 2000,
			VectorDim:  32,
			M:          16,
			EF:         128,
			Heuristic:  true,
			Precision:  0.9,
			K:          10,
		},
	}

	for _, tc := range tests {
		t.Run(caseName(tc), func(t *testing.T) {
			runValidateInsertSearchCase(t, ctx, tc)
		})
	}
}

func caseName(tc TestCases) string {
	return fmt.Sprintf(
		"Vec=%d,Dim=%d,Heuristic=%t,M=%d,Precision=%f",
		tc.VectorSize,
		tc.VectorDim,
		tc.Heuristic,
		tc.M,
		tc.Precision,
	)
}

func runValidateInsertSearchCase(t *testing.T, ctx context.Context, tc TestCases) {
	rng := testutil.NewRNG(4711)
	vecs := rng.UnitVectors(tc.VectorSize, tc.VectorDim)

	h, err := New(func(o *Options) {
		o.Dimension = tc.VectorDim
		o.M = tc.M
		o.EFConstruction = tc.EF
		o.EFSearch = tc.EF
		o.Heuristic = tc.Heuristic
		o.Seed = 4711
	})
	require.NoError(t, err)

	for i, v := range vecs {
		_, err := h.Add(ctx, model.Record{ID: testutil.ID(i), Vector: v})
		require.NoError(t, err)
	}

	queries := rng.UnitVectors(50, tc.VectorDim)
	var total float64
	for _, q := range queries {
		truth := testutil.BruteForceSearch(vecs, q, tc.K)

		res, err := h.Search(ctx, q, index.SearchOptions{Limit: tc.K, Threshold: float32(math.Inf(-1))})
		require.NoError(t, err)

		approx := make([]testutil.SearchResult, len(res))
		for i, m := range res {
			approx[i] = testutil.SearchResult{ID: m.ID, Score: m.Score}
		}
		total += testutil.ComputeRecall(truth, approx)
	}

	recall := total / float64(len(queries))
	assert.GreaterOrEqual(t, recall, tc.Precision)
}

func TestRecallAgainstFlat(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(42)
	const dim = 24

	exact, err := flat.New()
	require.NoError(t, err)
	approx, err := New(func(o *Options) { o.Seed = 42 })
	require.NoError(t, err)

	for i, v := range rng.ClusteredVectors(1500, dim, 12, 0.2) {
		rec := model.Record{ID: testutil.ID(i), Vector: v, Metadata: map[string]any{"bucket": i % 4}}
		_, err := exact.Add(ctx, rec)
		require.NoError(t, err)
		_, err = approx.Add(ctx, rec)
		require.NoError(t, err)
	}

	opts := index.SearchOptions{Limit: 10, Threshold: float32(math.Inf(-1))}
	var hits, total int
	for _, q := range rng.UnitVectors(40, dim) {
		want, err := exact.Search(ctx, q, opts)
		require.NoError(t, err)
		got, err := approx.Search(ctx, q, opts)
		require.NoError(t, err)

		truth := make(map[string]bool, len(want))
		for _, m := range want {
			truth[m.ID] = true
		}
		for _, m := range got {
			if truth[m.ID] {
				hits++
			}
		}
		total += len(want)
	}
	assert.GreaterOrEqual(t, float64(hits)/float64(total), 0.9)
}

func TestTombstonesAndRebuild(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)

	h, err := New(func(o *Options) {
		o.Seed = 7
		o.MinRebuildDeletes = 50
		o.RebuildRatio = 0.25
	})
	require.NoError(t, err)

	vecs := rng.UnitVectors(400, 16)
	for i, v := range vecs {
		_, err := h.Add(ctx, model.Record{ID: testutil.ID(i), Vector: v})
		require.NoError(t, err)
	}

	// Below the ratio: tombstones accumulate.
	for i := range 60 {
		ok, err := h.Delete(ctx, testutil.ID(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	st := h.Stats()
	assert.Equal(t, 60, st.Tombstones)
	assert.Equal(t, 340, st.Live)
	assert.Equal(t, 0, st.Rebuilds)

	// Deleted records never surface, even when their vector is the query.
	res, err := h.Search(ctx, vecs[0], index.SearchOptions{Limit: 20, Threshold: float32(math.Inf(-1))})
	require.NoError(t, err)
	require.Len(t, res, 20)
	for _, m := range res {
		assert.NotEqual(t, testutil.ID(0), m.ID)
	}

	// Crossing the ratio triggers a rebuild.
	for i := 60; i < 100; i++ {
		_, err := h.Delete(ctx, testutil.ID(i))
		require.NoError(t, err)
	}
	st = h.Stats()
	assert.Equal(t, 1, st.Rebuilds)
	assert.Equal(t, 0, st.Tombstones)
	assert.Equal(t, 300, st.Live)
	assert.Equal(t, 300, st.Nodes)

	n, err := h.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	// Survivors keep their insertion order across the rebuild.
	recs, err := h.Records(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 300)
	assert.Equal(t, testutil.ID(100), recs[0].ID)
	assert.Equal(t, testutil.ID(399), recs[299].ID)

	res, err = h.Search(ctx, vecs[200], index.SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, testutil.ID(200), res[0].ID)
}

func TestManualRebuild(t *testing.T) {
	ctx := context.Background()
	h, err := New(func(o *Options) { o.Seed = 1 })
	require.NoError(t, err)

	for i := range 10 {
		_, err := h.Add(ctx, model.Record{ID: testutil.ID(i), Vector: []float32{float32(i), 1}})
		require.NoError(t, err)
	}
	_, _ = h.Delete(ctx, testutil.ID(3))
	assert.Equal(t, 1, h.Stats().Tombstones)

	require.NoError(t, h.Rebuild(ctx))
	st := h.Stats()
	assert.Equal(t, 0, st.Tombstones)
	assert.Equal(t, 9, st.Nodes)
}

func TestUpsertTombstonesOldNode(t *testing.T) {
	ctx := context.Background()
	h, err := New(func(o *Options) { o.Seed = 3 })
	require.NoError(t, err)

	_, _ = h.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}})
	_, _ = h.Add(ctx, model.Record{ID: "a", Vector: []float32{0, 1}})

	st := h.Stats()
	assert.Equal(t, 2, st.Nodes)
	assert.Equal(t, 1, st.Live)
	assert.Equal(t, 1, st.Tombstones)

	res, err := h.Search(ctx, []float32{0, 1}, index.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestFilteredSearch(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(11)
	vecs := rng.UnitVectors(1200, 16)

	for _, threshold := range []int{0, 10_000} {
		t.Run(fmt.Sprintf("ExactSearchThreshold=%d", threshold), func(t *testing.T) {
			h, err := New(func(o *Options) {
				o.Seed = 11
				o.ExactSearchThreshold = threshold
			})
			require.NoError(t, err)

			for i, v := range vecs {
				_, err := h.Add(ctx, model.Record{ID: testutil.ID(i), Vector: v, Metadata: map[string]any{"tenant": i % 10}})
				require.NoError(t, err)
			}

			filter := metadata.NewFilterSet(metadata.Eq("tenant", 3))
			res, err := h.Search(ctx, vecs[3], index.SearchOptions{Limit: 15, Threshold: float32(math.Inf(-1)), Filter: filter})
			require.NoError(t, err)
			require.Len(t, res, 15)
			assert.Equal(t, testutil.ID(3), res[0].ID)
			for _, m := range res {
				assert.Equal(t, 3, m.Metadata["tenant"])
			}

			none, err := h.Search(ctx, vecs[3], index.SearchOptions{Filter: metadata.NewFilterSet(metadata.Eq("tenant", 99))})
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestConcurrentAddSearchDelete(t *testing.T) {
	ctx := context.Background()
	h, err := New(func(o *Options) {
		o.Seed = 5
		o.MinRebuildDeletes = 10
	})
	require.NoError(t, err)

	rng := testutil.NewRNG(5)
	vecs := rng.UnitVectors(800, 8)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; i < len(vecs); i += 4 {
				_, err := h.Add(ctx, model.Record{ID: testutil.ID(i), Vector: vecs[i]})
				assert.NoError(t, err)
				_, err = h.Search(ctx, vecs[i], index.DefaultSearchOptions())
				assert.NoError(t, err)
				if i%5 == 0 {
					_, err = h.Delete(ctx, testutil.ID(i))
					assert.NoError(t, err)
				}
			}
		}()
	}
	wg.Wait()

	n, err := h.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 800-160, n)
}
