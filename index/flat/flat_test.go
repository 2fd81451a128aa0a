package flat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/index/indextest"
	"github.com/hupe1980/vecmem/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatContract(t *testing.T) {
	indextest.Run(t, func(t *testing.T, dim int) index.Index {
		f, err := New(func(o *Options) { o.Dimension = dim })
		require.NoError(t, err)
		return f
	}, indextest.Options{})
}

func TestFlat(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := New(func(o *Options) { o.Dimension = -1 })
		var ic *index.ErrInvalidConfiguration
		require.ErrorAs(t, err, &ic)

		_, err = New(func(o *Options) { o.Metric = distance.Metric(99) })
		require.ErrorAs(t, err, &ic)
		assert.Equal(t, "Metric", ic.Field)
	})

	t.Run("L2", func(t *testing.T) {
		f, err := New(func(o *Options) { o.Metric = distance.MetricL2 })
		require.NoError(t, err)

		_, _ = f.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 2, 3}})
		_, _ = f.Add(ctx, model.Record{ID: "b", Vector: []float32{4, 5, 6}})
		_, _ = f.Add(ctx, model.Record{ID: "c", Vector: []float32{7, 8, 9}})

		res, err := f.Search(ctx, []float32{7, 8, 9}, index.SearchOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "c", res[0].ID)
		assert.Equal(t, "b", res[1].ID)
		assert.Equal(t, float32(0), res[0].Score)
		assert.Equal(t, float32(-27), res[1].Score)
	})

	t.Run("SlotReuse", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)

		_, _ = f.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}})
		_, _ = f.Add(ctx, model.Record{ID: "b", Vector: []float32{0, 1}})
		_, _ = f.Delete(ctx, "a")
		assert.Equal(t, 1, f.Stats().FreeSlots)

		_, _ = f.Add(ctx, model.Record{ID: "c", Vector: []float32{1, 0}})
		st := f.Stats()
		assert.Equal(t, 0, st.FreeSlots)
		assert.Equal(t, 2, st.Records)

		// Slot reuse must not change insertion order.
		recs, err := f.Records(ctx, nil)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "b", recs[0].ID)
		assert.Equal(t, "c", recs[1].ID)
	})

	t.Run("Closed", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)
		require.NoError(t, f.Close())
		_, err = f.Add(ctx, model.Record{ID: "a", Vector: []float32{1}})
		require.ErrorIs(t, err, index.ErrClosed)
	})

	t.Run("Config", func(t *testing.T) {
		f, err := New(func(o *Options) { o.Dimension = 3 })
		require.NoError(t, err)
		cfg := f.Config()
		assert.Equal(t, "flat", cfg["engine"])
		assert.Equal(t, "cosine", cfg["metric"])
		assert.Equal(t, 3, cfg["dimension"])
	})
}

func TestFlatConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	f, err := New(func(o *Options) { o.Dimension = 4 })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := fmt.Sprintf("w%d-%d", w, i)
				_, err := f.Add(ctx, model.Record{ID: id, Vector: []float32{float32(w), float32(i), 1, 1}})
				assert.NoError(t, err)
				_, err = f.Search(ctx, []float32{1, 1, 1, 1}, index.DefaultSearchOptions())
				assert.NoError(t, err)
				if i%3 == 0 {
					_, err = f.Delete(ctx, id)
					assert.NoError(t, err)
				}
			}
		}()
	}
	wg.Wait()

	n, err := f.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4*(50-17), n)
}
