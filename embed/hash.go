package embed

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/vecmem/distance"
)

// Hash is a deterministic feature-hashing embedder. Texts sharing words get
// similar vectors, which is enough for tests and offline use.
type Hash struct {
	dim int
}

// Compile-time check to ensure Hash satisfies the Embedder interface.
var _ Embedder = (*Hash)(nil)

// NewHash creates a hashing embedder producing vectors of length dim.
// Non-positive values select 64.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = 64
	}
	return &Hash{dim: dim}
}

// Dimension returns the vector length.
func (h *Hash) Dimension() int { return h.dim }

// Embed implements Embedder. The result is L2-normalised. Text without any
// word yields the zero vector.
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		sum := xxhash.Sum64String(w)
		bucket := sum % uint64(h.dim)
		// The top bit picks the sign so collisions partly cancel.
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	distance.NormalizeL2InPlace(v)
	return v, nil
}
