package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIModel is the embedding model used when none is configured.
	DefaultOpenAIModel = string(openai.SmallEmbedding3)

	// DefaultOpenAIDimension matches text-embedding-3-small.
	DefaultOpenAIDimension = 1536
)

// OpenAIBackend embeds text through the OpenAI embeddings API, or any
// compatible endpoint when baseURL is set.
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewOpenAIBackend builds a backend for apiKey. baseURL overrides the API
// endpoint for compatible servers and may be empty.
func NewOpenAIBackend(apiKey, baseURL, model string, dimension int) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing OpenAI API key", ErrNotConfigured)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dimension <= 0 {
		dimension = DefaultOpenAIDimension
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}, nil
}

// Embed sends all texts in one request; the API accepts batched inputs.
func (o *OpenAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: o.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed %d texts: %w", len(texts), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (o *OpenAIBackend) Dimension() int { return o.dimension }

func (o *OpenAIBackend) Model() string { return o.model }
