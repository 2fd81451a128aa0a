// Package openai implements embed.Embedder with the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/hupe1980/vecmem/embed"
)

// Client is the subset of the go-openai client used by the embedder.
type Client interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Options contains configuration options for the OpenAI embedder.
type Options struct {
	// APIKey authenticates requests. Ignored when Client is set.
	APIKey string

	// BaseURL points at an OpenAI compatible endpoint.
	BaseURL string

	// Model names the embedding model.
	Model string

	// Dimensions shortens text-embedding-3 vectors when positive.
	Dimensions int

	// Client replaces the HTTP client, mainly for tests.
	Client Client
}

// DefaultOptions contains the default configuration options for the OpenAI embedder.
var DefaultOptions = Options{
	Model: string(openai.SmallEmbedding3),
}

// Embedder calls the embeddings endpoint once per text.
type Embedder struct {
	opts   Options
	client Client
}

// Compile-time check to ensure Embedder satisfies the embed.Embedder interface.
var _ embed.Embedder = (*Embedder)(nil)

// New creates an OpenAI embedder.
func New(optFns ...func(o *Options)) (*Embedder, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	if opts.Dimensions < 0 {
		return nil, fmt.Errorf("openai: dimensions must be >= 0, got %d", opts.Dimensions)
	}

	client := opts.Client
	if client == nil {
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai: api key must not be empty")
		}
		cfg := openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
		client = openai.NewClientWithConfig(cfg)
	}

	return &Embedder{opts: opts, client: client}, nil
}

// Embed implements embed.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.opts.Model),
		Dimensions: e.opts.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, embed.ErrEmptyEmbedding
	}

	return rsp.Data[0].Embedding, nil
}
