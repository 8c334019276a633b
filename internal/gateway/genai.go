package gateway

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/smartedupay/aicore/internal/log"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// genaiProvider is the shared body of the Gemini and Vertex providers, which
// differ only in client construction and configuration checks.
type genaiProvider struct {
	name       string
	model      string
	logger     log.Logger
	configured bool
	newClient  func(ctx context.Context) (*genai.Client, error)

	mu     sync.Mutex
	client *genai.Client

	temperature *float32
	maxTokens   int32
}

func (p *genaiProvider) Name() string     { return p.name }
func (p *genaiProvider) Configured() bool { return p.configured }

func (p *genaiProvider) init(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: create client: %w", p.name, err)
	}
	p.client = client
	return client, nil
}

func (p *genaiProvider) Generate(ctx context.Context, msgs []Message) (string, error) {
	client, err := p.init(ctx)
	if err != nil {
		return "", err
	}
	contents, config := p.convert(msgs)
	resp, err := client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%s: generate: %w", p.name, err)
	}
	return extractText(p.name, resp)
}

func (p *genaiProvider) Stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	client, err := p.init(ctx)
	if err != nil {
		return err
	}
	contents, config := p.convert(msgs)
	for resp, err := range client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return fmt.Errorf("%s: stream: %w", p.name, err)
		}
		text, terr := extractText(p.name, resp)
		if terr != nil {
			p.logger.Debug("skipping undecodable stream chunk", "provider", p.name)
			continue
		}
		if text == "" {
			continue
		}
		if cerr := cb(ctx, text); cerr != nil {
			return cerr
		}
	}
	return nil
}

// convert maps the conversation onto the genai request shape: system turns
// fold into the system instruction, the rest alternate user/model contents.
func (p *genaiProvider) convert(msgs []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature:     p.temperature,
		MaxOutputTokens: p.maxTokens,
	}
	var contents []*genai.Content
	var system string
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config
}

// extractText decodes a response that may carry its text either at the top
// level or nested under candidates.
func extractText(name string, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%s: nil response", name)
	}
	if text := resp.Text(); text != "" {
		return text, nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("%s: response carried no text", name)
}

// GeminiOptions configures a Gemini API provider.
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature *float32
	MaxTokens   int32
}

// NewGeminiProvider calls the hosted Gemini API with an API key.
func NewGeminiProvider(opts GeminiOptions, logger log.Logger) Provider {
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &genaiProvider{
		name:       "gemini",
		model:      model,
		logger:     logOrNop(logger),
		configured: opts.APIKey != "",
		newClient: func(ctx context.Context) (*genai.Client, error) {
			return genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  opts.APIKey,
				Backend: genai.BackendGeminiAPI,
			})
		},
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

// VertexOptions configures a Vertex AI provider. Credentials come from
// application default credentials in the environment.
type VertexOptions struct {
	Project     string
	Location    string
	Model       string
	Temperature *float32
	MaxTokens   int32
}

// NewVertexProvider calls Gemini through Vertex AI.
func NewVertexProvider(opts VertexOptions, logger log.Logger) Provider {
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	location := opts.Location
	if location == "" {
		location = "us-central1"
	}
	return &genaiProvider{
		name:       "vertex",
		model:      model,
		logger:     logOrNop(logger),
		configured: opts.Project != "",
		newClient: func(ctx context.Context) (*genai.Client, error) {
			return genai.NewClient(ctx, &genai.ClientConfig{
				Project:  opts.Project,
				Location: location,
				Backend:  genai.BackendVertexAI,
			})
		},
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}
