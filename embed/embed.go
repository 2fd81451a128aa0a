// Package embed turns text into vectors for the hybrid engine.
//
// Embedder is the only contract the engine depends on. NewHash provides a
// deterministic offline embedder, NewCached memoises any embedder in a
// ristretto cache and the openai subpackage calls the OpenAI embeddings API.
package embed

import (
	"context"
	"errors"
)

// ErrEmptyEmbedding is returned when an embedder produces no vector.
var ErrEmptyEmbedding = errors.New("embedder returned an empty vector")

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Func adapts a plain function to the Embedder interface.
type Func func(ctx context.Context, text string) ([]float32, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
