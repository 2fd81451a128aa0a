package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmem/embed"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(openai.EmbeddingResponse), args.Error(1)
}

func TestEmbed(t *testing.T) {
	client := &mockClient{}
	client.On("CreateEmbeddings", mock.Anything, mock.MatchedBy(func(conv openai.EmbeddingRequestConverter) bool {
		req := conv.Convert()
		in, ok := req.Input.([]string)
		return ok && len(in) == 1 && in[0] == "hello" &&
			req.Model == openai.SmallEmbedding3 && req.Dimensions == 256
	})).Return(openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float32{0.1, 0.2}}},
	}, nil).Once()

	e, err := New(func(o *Options) {
		o.Client = client
		o.Dimensions = 256
	})
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, v)
	client.AssertExpectations(t)
}

func TestEmbed_Errors(t *testing.T) {
	boom := errors.New("rate limited")

	client := &mockClient{}
	client.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, boom).Once()
	client.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, nil).Once()

	e, err := New(func(o *Options) { o.Client = client })
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")
	require.ErrorIs(t, err, boom)

	_, err = e.Embed(context.Background(), "x")
	require.ErrorIs(t, err, embed.ErrEmptyEmbedding)
}

func TestNew_Validation(t *testing.T) {
	_, err := New()
	require.Error(t, err, "api key is required without a client")

	_, err = New(func(o *Options) {
		o.APIKey = "k"
		o.Model = ""
	})
	require.Error(t, err)

	_, err = New(func(o *Options) {
		o.APIKey = "k"
		o.Dimensions = -1
	})
	require.Error(t, err)

	e, err := New(func(o *Options) {
		o.APIKey = "k"
		o.BaseURL = "http://localhost:1234/v1"
	})
	require.NoError(t, err)
	assert.NotNil(t, e)
}
