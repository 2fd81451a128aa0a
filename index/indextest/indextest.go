// Package indextest provides a conformance suite for index.Index drivers.
package indextest

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory creates an empty cosine index. dim 0 means "learn from first insert".
type Factory func(t *testing.T, dim int) index.Index

// Options tunes the suite for drivers with known restrictions.
type Options struct {
	// RejectsZeroVectors marks drivers that cannot store zero-magnitude vectors.
	RejectsZeroVectors bool
}

// Run executes the conformance suite against fresh indexes from newIndex.
func Run(t *testing.T, newIndex Factory, opts Options) {
	ctx := context.Background()

	t.Run("DimensionInvariant", func(t *testing.T) {
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "a", Vector: []float32{1, 0, 0}})
		assert.Equal(t, 3, ix.Dimension())

		_, err := ix.Add(ctx, model.Record{ID: "b", Vector: []float32{1, 0}})
		var dm *index.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 3, dm.Expected)
		assert.Equal(t, 2, dm.Actual)

		_, err = ix.Search(ctx, []float32{1, 0}, index.DefaultSearchOptions())
		require.ErrorAs(t, err, &dm)

		n, err := ix.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "rejected add must not touch the index")
	})

	t.Run("ConfiguredDimension", func(t *testing.T) {
		ix := newIndex(t, 4)
		_, err := ix.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}})
		var dm *index.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})

	t.Run("EmptySearch", func(t *testing.T) {
		ix := newIndex(t, 0)
		res, err := ix.Search(ctx, []float32{1, 0}, index.DefaultSearchOptions())
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("GeneratedID", func(t *testing.T) {
		ix := newIndex(t, 0)
		id, err := ix.Add(ctx, model.Record{Vector: []float32{1, 1}})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		rec, ok, err := ix.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id, rec.ID)
	})

	t.Run("Upsert", func(t *testing.T) {
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"v": 1}})
		_, err := ix.Add(ctx, model.Record{ID: "b", Vector: []float32{1, 0}})
		require.NoError(t, err)
		_, err = ix.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"v": 2}, Text: "second"})
		require.NoError(t, err)

		n, err := ix.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rec, ok, err := ix.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", rec.Text)
		assertMetaEqual(t, 2, rec.Metadata["v"])

		// Equal scores: "a" was inserted first and keeps that position.
		res, err := ix.Search(ctx, []float32{1, 0}, index.DefaultSearchOptions())
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].ID)
		assert.Equal(t, "b", res[1].ID)

		recs, err := ix.Records(ctx, nil)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "a", recs[0].ID)
	})

	t.Run("ExampleScenario", func(t *testing.T) {
		ix := newIndex(t, 0)
		for _, r := range []model.Record{
			{ID: "X", Vector: []float32{1, 0}},
			{ID: "Y", Vector: []float32{0, 1}},
			{ID: "Z", Vector: []float32{-1, 0}},
		} {
			_, err := ix.Add(ctx, r)
			require.NoError(t, err)
		}

		res, err := ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Limit: 3, Threshold: 0})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "X", res[0].ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-5)
		assert.Equal(t, "Y", res[1].ID)
		assert.InDelta(t, 0.0, res[1].Score, 1e-5)

		// Without a threshold negative scores are returned too.
		res, err = ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Limit: 3, Threshold: float32(math.Inf(-1))})
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "Z", res[2].ID)
		assert.InDelta(t, -1.0, res[2].Score, 1e-5)
	})

	t.Run("OrderingAndSelfMatch", func(t *testing.T) {
		ix := newIndex(t, 0)
		vecs := [][]float32{{1, 2, 3}, {3, 2, 1}, {-1, 0, 1}, {0.5, 0.5, 0.1}, {2, 4, 6.1}}
		for i, v := range vecs {
			_, err := ix.Add(ctx, model.Record{ID: fmt.Sprintf("r%d", i), Vector: v})
			require.NoError(t, err)
		}

		res, err := ix.Search(ctx, vecs[1], index.DefaultSearchOptions())
		require.NoError(t, err)
		require.Len(t, res, len(vecs))
		assert.Equal(t, "r1", res[0].ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-5)
		for i := 1; i < len(res); i++ {
			assert.LessOrEqual(t, res[i].Score, res[i-1].Score)
		}
		assert.Equal(t, vecs[1], res[0].Vector)
	})

	t.Run("Limit", func(t *testing.T) {
		ix := newIndex(t, 0)
		for i := range 15 {
			_, err := ix.Add(ctx, model.Record{ID: fmt.Sprintf("r%02d", i), Vector: []float32{1, float32(i)}})
			require.NoError(t, err)
		}

		res, err := ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Threshold: float32(math.Inf(-1))})
		require.NoError(t, err)
		assert.Len(t, res, index.DefaultLimit)

		res, err = ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Limit: 3, Threshold: float32(math.Inf(-1))})
		require.NoError(t, err)
		assert.Len(t, res, 3)
	})

	t.Run("Threshold", func(t *testing.T) {
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "near", Vector: []float32{1, 0.1}})
		add(t, ix, model.Record{ID: "far", Vector: []float32{0.1, 1}})

		res, err := ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Limit: 10, Threshold: 0.9})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "near", res[0].ID)
		for _, m := range res {
			assert.GreaterOrEqual(t, m.Score, float32(0.9))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "a", Vector: []float32{1, 0}})
		add(t, ix, model.Record{ID: "b", Vector: []float32{0, 1}})

		ok, err := ix.Delete(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = ix.Delete(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = ix.Delete(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		_, found, err := ix.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, found)

		res, err := ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Threshold: float32(math.Inf(-1))})
		require.NoError(t, err)
		for _, m := range res {
			assert.NotEqual(t, "a", m.ID)
		}

		n, err := ix.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Filters", func(t *testing.T) {
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"userId": "u1", "topic": "go"}})
		add(t, ix, model.Record{ID: "b", Vector: []float32{1, 0.2}, Metadata: map[string]any{"userId": "u2", "topic": "go"}})
		add(t, ix, model.Record{ID: "c", Vector: []float32{1, 0.4}, Metadata: map[string]any{"userId": "u1", "topic": "rust"}})

		u1 := metadata.NewFilterSet(metadata.Eq("userId", "u1"))

		res, err := ix.Search(ctx, []float32{1, 0}, index.SearchOptions{Limit: 10, Threshold: -1, Filter: u1})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].ID)
		assert.Equal(t, "c", res[1].ID)

		n, err := ix.Count(ctx, metadata.NewFilterSet(metadata.Eq("topic", "go")))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		recs, err := ix.Records(ctx, u1)
		require.NoError(t, err)
		assert.Len(t, recs, 2)

		n, err = ix.Count(ctx, u1.And(metadata.NewFilterSet(metadata.Eq("userId", "u2"))))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		removed, err := ix.Clear(ctx, u1)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		n, err = ix.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = ix.Search(ctx, []float32{1, 0}, index.SearchOptions{
			Filter: metadata.NewFilterSet(metadata.Filter{Key: "topic", Operator: metadata.OpNotEqual, Value: metadata.String("go")}),
		})
		require.ErrorIs(t, err, metadata.ErrUnsupportedOperator)
	})

	t.Run("ClearAll", func(t *testing.T) {
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "a", Vector: []float32{1, 0}})
		add(t, ix, model.Record{ID: "b", Vector: []float32{0, 1}})

		removed, err := ix.Clear(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		n, err := ix.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		// The learned dimension is released.
		_, err = ix.Add(ctx, model.Record{ID: "c", Vector: []float32{1, 0, 0}})
		require.NoError(t, err)
	})

	t.Run("Isolation", func(t *testing.T) {
		ix := newIndex(t, 0)
		vec := []float32{1, 2}
		md := map[string]any{"nested": map[string]any{"k": "v"}}
		add(t, ix, model.Record{ID: "a", Vector: vec, Metadata: md})

		vec[0] = 99
		md["nested"].(map[string]any)["k"] = "mutated"

		rec, ok, err := ix.Get(ctx, "a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, rec.Vector)

		rec.Vector[1] = 42
		again, _, _ := ix.Get(ctx, "a")
		assert.Equal(t, []float32{1, 2}, again.Vector)
		nested, _ := again.Metadata["nested"].(map[string]any)
		assert.Equal(t, "v", nested["k"])
	})

	t.Run("ZeroVector", func(t *testing.T) {
		if opts.RejectsZeroVectors {
			t.Skip("driver rejects zero vectors")
		}
		ix := newIndex(t, 0)
		add(t, ix, model.Record{ID: "z", Vector: []float32{0, 0}})
		_, err := ix.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}})
		require.NoError(t, err)

		res, err := ix.Search(ctx, []float32{0, 0}, index.SearchOptions{Threshold: float32(math.Inf(-1))})
		require.NoError(t, err)
		require.Len(t, res, 2)
		for _, m := range res {
			assert.Equal(t, float32(0), m.Score)
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		ix := newIndex(t, 0)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ix.Add(cctx, model.Record{ID: "a", Vector: []float32{1}})
		require.ErrorIs(t, err, context.Canceled)
	})
}

// assertMetaEqual compares numbers regardless of the driver's decoded type.
func add(t *testing.T, ix index.Index, rec model.Record) {
	t.Helper()
	_, err := ix.Add(context.Background(), rec)
	require.NoError(t, err)
}

func assertMetaEqual(t *testing.T, want, got any) {
	t.Helper()
	wv, err := metadata.FromAny(want)
	require.NoError(t, err)
	gv, err := metadata.FromAny(got)
	require.NoError(t, err)
	assert.Equal(t, wv.Key(), gv.Key())
}
