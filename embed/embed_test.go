package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/distance"
)

func TestHash(t *testing.T) {
	ctx := context.Background()
	h := NewHash(128)
	assert.Equal(t, 128, h.Dimension())
	assert.Equal(t, 64, NewHash(0).Dimension())

	a, err := h.Embed(ctx, "The quick brown fox")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "the QUICK brown fox!")
	require.NoError(t, err)
	c, err := h.Embed(ctx, "completely unrelated sentence here")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, distance.Cosine(a, b), 1e-6)
	assert.InDelta(t, 1.0, distance.Magnitude(a), 1e-5)
	assert.Less(t, distance.Cosine(a, c), float32(0.5))

	z, err := h.Embed(ctx, "  ...  ")
	require.NoError(t, err)
	assert.Zero(t, distance.Magnitude(z))
}

func TestFunc(t *testing.T) {
	f := Func(func(_ context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	})
	v, err := f.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, v)
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	next := Func(func(_ context.Context, text string) ([]float32, error) {
		calls.Add(1)
		return []float32{1, float32(len(text))}, nil
	})

	c, err := NewCached(next, 1<<20)
	require.NoError(t, err)
	defer c.Close()

	v1, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	c.Wait()

	v2, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), c.Hits())

	v2[0] = 42
	v3, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, float32(1), v3[0], "cached vectors must not be shared")
}

func TestCached_Errors(t *testing.T) {
	ctx := context.Background()
	_, err := NewCached(nil, 0)
	require.Error(t, err)

	boom := errors.New("boom")
	c, err := NewCached(Func(func(context.Context, string) ([]float32, error) { return nil, boom }), 0)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Embed(ctx, "x")
	require.ErrorIs(t, err, boom)

	empty, err := NewCached(Func(func(context.Context, string) ([]float32, error) { return nil, nil }), 0)
	require.NoError(t, err)
	defer empty.Close()

	_, err = empty.Embed(ctx, "x")
	require.ErrorIs(t, err, ErrEmptyEmbedding)
}
