package chromem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/index/indextest"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

func TestContract(t *testing.T) {
	indextest.Run(t, func(t *testing.T, dim int) index.Index {
		ix, err := New(func(o *Options) { o.Dimension = dim })
		require.NoError(t, err)
		return ix
	}, indextest.Options{RejectsZeroVectors: true})
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(o *Options)
		field string
	}{
		{"negative dimension", func(o *Options) { o.Dimension = -1 }, "Dimension"},
		{"empty collection", func(o *Options) { o.Collection = "" }, "Collection"},
		{"persistent without dimension", func(o *Options) { o.PersistDir = t.TempDir() }, "Dimension"},
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

func TestZeroVector(t *testing.T) {
	ctx := context.Background()
	ix, err := New()
	require.NoError(t, err)

	_, err = ix.Add(ctx, model.Record{ID: "z", Vector: []float32{0, 0}})
	require.ErrorIs(t, err, ErrZeroVector)

	_, err = ix.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}})
	require.NoError(t, err)

	res, err := ix.Search(ctx, []float32{0, 0}, index.DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, float32(0), res[0].Score)
}

func TestOriginalVectorPreserved(t *testing.T) {
	ctx := context.Background()
	ix, err := New()
	require.NoError(t, err)

	_, err = ix.Add(ctx, model.Record{ID: "a", Vector: []float32{3, 4}, Text: "hello"})
	require.NoError(t, err)

	rec, ok, err := ix.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, rec.Vector)
	assert.Equal(t, "hello", rec.Text)
}

func TestTypedFilters(t *testing.T) {
	ctx := context.Background()
	ix, err := New()
	require.NoError(t, err)

	_, err = ix.Add(ctx, model.Record{ID: "int", Vector: []float32{1, 0}, Metadata: map[string]any{"year": 2024}})
	require.NoError(t, err)
	_, err = ix.Add(ctx, model.Record{ID: "str", Vector: []float32{1, 0}, Metadata: map[string]any{"year": "2024"}})
	require.NoError(t, err)

	n, err := ix.Count(ctx, metadata.NewFilterSet(metadata.Eq("year", 2024.0)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := ix.Records(ctx, metadata.NewFilterSet(metadata.Eq("year", "2024")))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "str", recs[0].ID)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ix, err := New(func(o *Options) {
		o.Dimension = 2
		o.PersistDir = dir
	})
	require.NoError(t, err)

	_, err = ix.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = ix.Add(ctx, model.Record{ID: "b", Vector: []float32{0, 1}})
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	reopened, err := New(func(o *Options) {
		o.Dimension = 2
		o.PersistDir = dir
	})
	require.NoError(t, err)

	n, err := reopened.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = reopened.Add(ctx, model.Record{ID: "c", Vector: []float32{1, 1}})
	require.NoError(t, err)

	recs, err := reopened.Records(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})
}
