package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is the embedding model used when none is configured.
	DefaultGeminiModel = "text-embedding-004"

	// DefaultGeminiDimension matches the storage layout written by learn runs.
	DefaultGeminiDimension = 768

	geminiBatchSize = 100
)

// GeminiBackend embeds text through the Gemini API.
type GeminiBackend struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiBackend builds a backend against the Gemini API using apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string, dimension int) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Gemini API key", ErrNotConfigured)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if dimension <= 0 {
		dimension = DefaultGeminiDimension
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model, dimension: dimension}, nil
}

// Embed requests embeddings in batches of at most 100 texts.
func (g *GeminiBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchSize {
		end := min(start+geminiBatchSize, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr[int32](int32(g.dimension)),
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embed batch [%d:%d]: %w", start, end, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (g *GeminiBackend) Dimension() int { return g.dimension }

func (g *GeminiBackend) Model() string { return g.model }
