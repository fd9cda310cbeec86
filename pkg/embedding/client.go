// Package embedding produces text embeddings with the Gemini API.
package embedding

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

// Config configures the Gemini embedder.
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
}

// embedFunc matches genai's Models.EmbedContent.
type embedFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)

// Client embeds short texts, one request per text.
type Client struct {
	model      string
	dimensions int
	embed      embedFunc
}

// New creates a Gemini-backed embedding client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, eris.New("embedding: api key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "embedding: create genai client")
	}
	return newClient(cfg, gc.Models.EmbedContent), nil
}

func newClient(cfg Config, fn embedFunc) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{model: model, dimensions: cfg.Dimensions, embed: fn}
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	conf := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if c.dimensions > 0 {
		conf.OutputDimensionality = genai.Ptr(int32(c.dimensions))
	}
	resp, err := c.embed(ctx, c.model, genai.Text(text), conf)
	if err != nil {
		return nil, eris.Wrap(err, "embedding: embed content")
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, eris.New("embedding: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
