package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/distance"
	"github.com/hupe1980/vecmem/index"
	"github.com/hupe1980/vecmem/index/indextest"
	"github.com/hupe1980/vecmem/metadata"
	"github.com/hupe1980/vecmem/model"
)

func openMemory(t *testing.T, optFns ...func(o *Options)) *Index {
	t.Helper()
	ix, err := Open(context.Background(), ":memory:", optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestContract(t *testing.T) {
	indextest.Run(t, func(t *testing.T, dim int) index.Index {
		return openMemory(t, func(o *Options) { o.Dimension = dim })
	}, indextest.Options{})
}

func TestNew_InvalidOptions(t *testing.T) {
	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	tests := []struct {
		name  string
		fn    func(o *Options)
		field string
	}{
		{"negative dimension", func(o *Options) { o.Dimension = -1 }, "Dimension"},
		{"bad table", func(o *Options) { o.Table = "drop table;" }, "Table"},
		{"empty collection", func(o *Options) { o.Collection = "" }, "Collection"},
		{"bad metric", func(o *Options) { o.Metric = distance.Metric(42) }, "Metric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), db, tt.fn)
			var ic *index.ErrInvalidConfiguration
			require.ErrorAs(t, err, &ic)
			assert.Equal(t, tt.field, ic.Field)
		})
	}

	_, err = New(context.Background(), nil)
	var ic *index.ErrInvalidConfiguration
	require.ErrorAs(t, err, &ic)
}

func TestDurability(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vecmem.db")

	ix, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = ix.Add(ctx, model.Record{ID: "a", Vector: []float32{1, 0, 0}, Text: "first", Metadata: map[string]any{"n": 1}})
	require.NoError(t, err)
	_, err = ix.Add(ctx, model.Record{ID: "b", Vector: []float32{0, 1, 0}})
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Dimension())

	_, err = reopened.Add(ctx, model.Record{ID: "c", Vector: []float32{1, 0}})
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)

	_, err = reopened.Add(ctx, model.Record{ID: "c", Vector: []float32{0, 0, 1}})
	require.NoError(t, err)

	recs, err := reopened.Records(ctx, nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "first", recs[0].Text)
	assert.Equal(t, "c", recs[2].ID)

	_, err = Open(ctx, path, func(o *Options) { o.Dimension = 8 })
	var ic *index.ErrInvalidConfiguration
	require.ErrorAs(t, err, &ic)
}

func TestCollectionsShareTable(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open(DriverName, "file:"+filepath.Join(t.TempDir(), "shared.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	a, err := New(ctx, db, func(o *Options) { o.Collection = "a" })
	require.NoError(t, err)
	b, err := New(ctx, db, func(o *Options) { o.Collection = "b" })
	require.NoError(t, err)

	_, err = a.Add(ctx, model.Record{ID: "x", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = b.Add(ctx, model.Record{ID: "x", Vector: []float32{1, 0, 0}})
	require.NoError(t, err)

	n, err := a.Clear(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, b.Dimension())
}

func TestFilterPushdown(t *testing.T) {
	ctx := context.Background()
	ix := openMemory(t)

	for i, md := range []map[string]any{
		{"userId": "u1", "n": 1},
		{"userId": "u1", "n": 2},
		{"userId": "u2", "n": 1},
		{"userId": 1, "n": 1},
	} {
		_, err := ix.Add(ctx, model.Record{Vector: []float32{1, float32(i)}, Metadata: md})
		require.NoError(t, err)
	}

	n, err := ix.Count(ctx, metadata.NewFilterSet(metadata.Eq("userId", "u1")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ix.Count(ctx, metadata.NewFilterSet(metadata.Eq("userId", "u1"), metadata.Eq("n", 1)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = ix.Count(ctx, metadata.NewFilterSet(metadata.Eq("userId", 1)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
