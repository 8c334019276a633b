package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smartedupay/aicore/internal/log"
)

// compatClient speaks the OpenAI chat-completions wire format. The OpenAI
// and Azure providers differ only in URL shape and auth header, so they
// share this client and its retry loop.
type compatClient struct {
	name       string
	url        string
	headers    map[string]string
	model      string
	httpClient *http.Client
	policy     RetryPolicy
	limiter    Limiter
	logger     log.Logger

	temperature *float32
	maxTokens   int
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *compatClient) generate(ctx context.Context, msgs []Message) (string, error) {
	resp, err := doWithRetry(ctx, c.httpClient, c.policy, c.limiter, func() (*http.Request, error) {
		return c.request(msgs, false)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", c.name)
	}
	return decoded.Choices[0].Message.Content, nil
}

// stream reads server-sent events. Lines that fail to parse are skipped;
// "[DONE]" ends the stream.
func (c *compatClient) stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	resp, err := doWithRetry(ctx, c.httpClient, c.policy, c.limiter, func() (*http.Request, error) {
		return c.request(msgs, true)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var decoded chatResponse
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			c.logger.Debug("skipping unparseable stream event", "provider", c.name, "error", err)
			continue
		}
		if len(decoded.Choices) == 0 {
			continue
		}
		chunk := decoded.Choices[0].Delta.Content
		if chunk == "" {
			chunk = decoded.Choices[0].Message.Content
		}
		if chunk == "" {
			continue
		}
		if err := cb(ctx, chunk); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: read stream: %w", c.name, err)
	}
	return nil
}

func (c *compatClient) request(msgs []Message, stream bool) (*http.Request, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Stream:      stream,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// OpenAIProvider calls the OpenAI chat-completions API, or any compatible
// server when baseURL overrides the default.
type OpenAIProvider struct {
	client *compatClient
	apiKey string
}

// OpenAIOptions configures an OpenAIProvider.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Policy      RetryPolicy
	Limiter     Limiter
	Temperature *float32
	MaxTokens   int
}

// NewOpenAIProvider builds the provider; it is inert until an API key is set.
func NewOpenAIProvider(opts OpenAIOptions, logger log.Logger) *OpenAIProvider {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		apiKey: opts.APIKey,
		client: &compatClient{
			name: "openai",
			url:  base + "/chat/completions",
			headers: map[string]string{
				"Authorization": "Bearer " + opts.APIKey,
			},
			model:       model,
			httpClient:  newHTTPClient(opts.Timeout),
			policy:      opts.Policy,
			limiter:     opts.Limiter,
			logger:      logOrNop(logger),
			temperature: opts.Temperature,
			maxTokens:   opts.MaxTokens,
		},
	}
}

func (p *OpenAIProvider) Name() string     { return "openai" }
func (p *OpenAIProvider) Configured() bool { return p.apiKey != "" }

func (p *OpenAIProvider) Generate(ctx context.Context, msgs []Message) (string, error) {
	return p.client.generate(ctx, msgs)
}

func (p *OpenAIProvider) Stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	return p.client.stream(ctx, msgs, cb)
}

// AzureProvider calls an Azure OpenAI deployment.
type AzureProvider struct {
	client   *compatClient
	endpoint string
	apiKey   string
}

// AzureOptions configures an AzureProvider.
type AzureOptions struct {
	Endpoint    string
	APIKey      string
	Deployment  string
	APIVersion  string
	Timeout     time.Duration
	Policy      RetryPolicy
	Limiter     Limiter
	Temperature *float32
	MaxTokens   int
}

// NewAzureProvider builds the provider; it is inert until both endpoint and
// key are set.
func NewAzureProvider(opts AzureOptions, logger log.Logger) *AzureProvider {
	version := opts.APIVersion
	if version == "" {
		version = "2024-02-15-preview"
	}
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(opts.Endpoint, "/"), opts.Deployment, version)
	return &AzureProvider{
		endpoint: opts.Endpoint,
		apiKey:   opts.APIKey,
		client: &compatClient{
			name: "azure",
			url:  url,
			headers: map[string]string{
				"api-key": opts.APIKey,
			},
			// Azure routes by deployment in the URL, not the body.
			model:       "",
			httpClient:  newHTTPClient(opts.Timeout),
			policy:      opts.Policy,
			limiter:     opts.Limiter,
			logger:      logOrNop(logger),
			temperature: opts.Temperature,
			maxTokens:   opts.MaxTokens,
		},
	}
}

func (p *AzureProvider) Name() string     { return "azure" }
func (p *AzureProvider) Configured() bool { return p.endpoint != "" && p.apiKey != "" }

func (p *AzureProvider) Generate(ctx context.Context, msgs []Message) (string, error) {
	return p.client.generate(ctx, msgs)
}

func (p *AzureProvider) Stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	return p.client.stream(ctx, msgs, cb)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func logOrNop(logger log.Logger) log.Logger {
	if logger == nil {
		return log.NewNop()
	}
	return logger
}
