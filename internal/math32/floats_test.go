package math32

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Positive values", []float32{1, 2, 3}, []float32{4, 5, 6}, 32.0},
		{"Negative values", []float32{-1, -2, -3}, []float32{-4, -5, -6}, 32.0},
		{"More than 4", []float32{1, 2, 3, 1, 2, 3}, []float32{4, 5, 6, 4, 5, 6}, 64.0},
		{"Mixed values", []float32{1, -2, 3}, []float32{-4, 5, -6}, -32.0},
		{"Zero values", []float32{0, 0, 0}, []float32{0, 0, 0}, 0.0},
		{"Empty", nil, nil, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Dot(tc.a, tc.b))
			assert.InDelta(t, float64(tc.expected), Dot64(tc.a, tc.b), 1e-9)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Identical", []float32{1, 2, 3, 4, 5}, []float32{1, 2, 3, 4, 5}, 0},
		{"Unrolled tail", []float32{1, 0, 0, 0, 2}, []float32{0, 0, 0, 0, 0}, 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SquaredL2(tc.a, tc.b))
		})
	}
}

func TestScaleInPlace(t *testing.T) {
	v := []float32{1, 2, 3}
	ScaleInPlace(v, 2)
	assert.Equal(t, []float32{2, 4, 6}, v)
	assert.Equal(t, float32(3), Sqrt(9))
}

func BenchmarkDot(b *testing.B) {
	const size = 1536
	va := make([]float32, size)
	vb := make([]float32, size)

	for i := range va {
		va[i] = rand.Float32() // nolint gosec
		vb[i] = rand.Float32() // nolint gosec
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = Dot(va, vb)
	}
}
