package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestClient_Embed(t *testing.T) {
	var gotModel, gotText string
	var gotDims *int32
	c := newClient(Config{Dimensions: 256}, func(_ context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
		gotModel = model
		gotText = contents[0].Parts[0].Text
		gotDims = cfg.OutputDimensionality
		return &genai.EmbedContentResponse{
			Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2, 0.3}}},
		}, nil
	})

	vec, err := c.Embed(context.Background(), "SUMMIT X 850")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, DefaultModel, gotModel)
	assert.Equal(t, "SUMMIT X 850", gotText)
	require.NotNil(t, gotDims)
	assert.Equal(t, int32(256), *gotDims)
}

func TestClient_Embed_Errors(t *testing.T) {
	failing := newClient(Config{Model: "custom"}, func(context.Context, string, []*genai.Content, *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
		return nil, errors.New("quota exceeded")
	})
	_, err := failing.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding: embed content")

	empty := newClient(Config{}, func(context.Context, string, []*genai.Content, *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
		return &genai.EmbedContentResponse{}, nil
	})
	_, err = empty.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
