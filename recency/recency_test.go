package recency

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/model"
)

func ids(recs []model.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T, capacity int) Store) {
	ctx := context.Background()

	t.Run("FIFO", func(t *testing.T) {
		s := newStore(t, 3)
		assert.Equal(t, 3, s.Capacity())

		for i := range 5 {
			require.NoError(t, s.Append(ctx, model.Record{ID: fmt.Sprintf("m%d", i), Text: "t"}))
		}

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"m2", "m3", "m4"}, ids(all))

		recent, err := s.Recent(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m4"}, ids(recent))

		recent, err = s.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, recent, 3)

		recent, err = s.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, recent)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		s := newStore(t, 10)
		rec := model.Record{
			ID:       "a",
			Text:     "hello",
			Vector:   []float32{1, 2},
			Metadata: map[string]any{"userId": "u"},
		}
		require.NoError(t, s.Append(ctx, rec))

		got, err := s.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hello", got[0].Text)
		assert.Equal(t, []float32{1, 2}, got[0].Vector)
		assert.Equal(t, "u", got[0].Metadata["userId"])

		got[0].Metadata["userId"] = "mutated"
		again, err := s.Recent(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "u", again[0].Metadata["userId"])
	})

	t.Run("Clear", func(t *testing.T) {
		s := newStore(t, 10)
		require.NoError(t, s.Append(ctx, model.Record{ID: "a"}))
		require.NoError(t, s.Clear(ctx))

		n, err := s.Len(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.Append(ctx, model.Record{ID: "b"}))
		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(all))
	})

	t.Run("Remove", func(t *testing.T) {
		s := newStore(t, 4)
		for i, user := range []string{"alice", "bob", "alice", "bob", "carol", "alice"} {
			require.NoError(t, s.Append(ctx, model.Record{
				ID:       fmt.Sprintf("m%d", i),
				Metadata: map[string]any{"userId": user},
			}))
		}

		byAlice := func(r model.Record) bool { return r.Metadata["userId"] == "alice" }

		n, err := s.Remove(ctx, byAlice)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m4"}, ids(all))

		n, err = s.Remove(ctx, byAlice)
		require.NoError(t, err)
		assert.Zero(t, n)

		// The compacted store keeps appending in order and evicting FIFO.
		for _, id := range []string{"x", "y", "z"} {
			require.NoError(t, s.Append(ctx, model.Record{ID: id}))
		}
		all, err = s.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"m4", "x", "y", "z"}, ids(all))
	})

	t.Run("RemoveConcurrentAppend", func(t *testing.T) {
		s := newStore(t, 1000)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := range 100 {
				assert.NoError(t, s.Append(ctx, model.Record{ID: fmt.Sprintf("keep%d", i)}))
			}
		}()
		go func() {
			defer wg.Done()
			for i := range 100 {
				assert.NoError(t, s.Append(ctx, model.Record{ID: fmt.Sprintf("drop%d", i), Text: "drop"}))
				_, err := s.Remove(ctx, func(r model.Record) bool { return r.Text == "drop" })
				assert.NoError(t, err)
			}
		}()
		wg.Wait()

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 100)
		for i, r := range all {
			assert.Equal(t, fmt.Sprintf("keep%d", i), r.ID)
		}
	})
}

func TestMemory(t *testing.T) {
	runStoreSuite(t, func(_ *testing.T, capacity int) Store {
		return NewMemory(capacity)
	})

	assert.Equal(t, DefaultCapacity, NewMemory(0).Capacity())
}

func TestSQLite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, capacity int) Store {
		db, err := sql.Open("sqlite", ":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		s, err := NewSQLite(context.Background(), db, "conv-1", capacity)
		require.NoError(t, err)
		return s
	})
}

func TestSQLite_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	a, err := NewSQLite(ctx, db, "a", 2)
	require.NoError(t, err)
	b, err := NewSQLite(ctx, db, "b", 2)
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, a.Append(ctx, model.Record{ID: fmt.Sprintf("a%d", i)}))
	}
	require.NoError(t, b.Append(ctx, model.Record{ID: "b0"}))

	all, err := b.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b0"}, ids(all))

	all, err = a.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids(all))

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Append(ctx, model.Record{ID: "x"}), ErrClosed)
}

func TestNewSQLite_Invalid(t *testing.T) {
	ctx := context.Background()
	_, err := NewSQLite(ctx, nil, "k", 1)
	require.Error(t, err)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLite(ctx, db, "", 1)
	require.Error(t, err)
	_, err = NewSQLite(ctx, db, "k", 1, func(o *SQLiteOptions) { o.Table = "x y" })
	require.Error(t, err)
}
