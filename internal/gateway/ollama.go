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

// OllamaProvider is the last resort of the chain: a local model server that
// needs no credentials. Failures produce an empty reply rather than an
// error, so a broken local setup degrades output instead of the whole
// request.
type OllamaProvider struct {
	host       string
	model      string
	httpClient *http.Client
	logger     log.Logger
	maxTokens  int
}

// OllamaOptions configures the local provider.
type OllamaOptions struct {
	Host      string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// NewOllamaProvider targets an Ollama server, defaulting to localhost.
func NewOllamaProvider(opts OllamaOptions, logger log.Logger) *OllamaProvider {
	host := strings.TrimSuffix(opts.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := opts.Model
	if model == "" {
		model = "tinyllama"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		host:       host,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logOrNop(logger),
		maxTokens:  opts.MaxTokens,
	}
}

func (p *OllamaProvider) Name() string { return "local" }

// Configured always holds: the local provider is the fallback of last
// resort and reports availability only at call time.
func (p *OllamaProvider) Configured() bool { return true }

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate flattens the conversation into a completion prompt and asks the
// local model. Any failure yields an empty reply and a log line.
func (p *OllamaProvider) Generate(ctx context.Context, msgs []Message) (string, error) {
	out, err := p.complete(ctx, Flatten(msgs))
	if err != nil {
		p.logger.Warn("local model unavailable", "host", p.host, "error", err)
		return "", nil
	}
	return ExtractAssistant(out), nil
}

// Stream reads the server's newline-delimited JSON event stream and forwards
// each token batch. Like Generate, a failing local server ends the stream
// silently.
func (p *OllamaProvider) Stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	resp, err := p.post(ctx, ollamaRequest{Model: p.model, Prompt: Flatten(msgs), Stream: true, Options: p.options()})
	if err != nil {
		p.logger.Warn("local model unavailable", "host", p.host, "error", err)
		return nil
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var event ollamaResponse
		if err := json.Unmarshal(sc.Bytes(), &event); err != nil {
			p.logger.Debug("skipping unparseable local event", "error", err)
			continue
		}
		if event.Response != "" {
			if cerr := cb(ctx, event.Response); cerr != nil {
				return cerr
			}
		}
		if event.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		p.logger.Warn("local stream interrupted", "host", p.host, "error", err)
	}
	return nil
}

func (p *OllamaProvider) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.post(ctx, ollamaRequest{Model: p.model, Prompt: prompt, Options: p.options()})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return decoded.Response, nil
}

func (p *OllamaProvider) options() map[string]any {
	if p.maxTokens <= 0 {
		return nil
	}
	return map[string]any{"num_predict": p.maxTokens}
}

func (p *OllamaProvider) post(ctx context.Context, reqBody ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		serr := &StatusError{Provider: "local", Code: resp.StatusCode, Body: readBodyPrefix(resp)}
		resp.Body.Close()
		return nil, serr
	}
	return resp, nil
}
