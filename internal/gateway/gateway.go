// Package gateway routes text generation across a chain of providers.
//
// Providers are tried in configuration order; an unconfigured provider is
// skipped, a failing one falls through to the next. Hosted HTTP providers
// share one retry loop that honors server rate-limit hints. Every outbound
// call first clears the rate limiter.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smartedupay/aicore/internal/log"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamCallback receives incremental output. Returning an error aborts the
// stream.
type StreamCallback func(ctx context.Context, chunk string) error

// ErrNotConfigured indicates a provider (or the whole chain) has no usable
// credentials.
var ErrNotConfigured = errors.New("no generation provider configured")

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.Code, truncate(e.Body, 200))
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch e.Code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Provider generates text from a conversation.
type Provider interface {
	Name() string
	// Configured reports whether the provider has what it needs to attempt
	// a call. Unconfigured providers are skipped without logging an error.
	Configured() bool
	Generate(ctx context.Context, msgs []Message) (string, error)
	Stream(ctx context.Context, msgs []Message, cb StreamCallback) error
}

// Limiter gates outbound calls. *ratelimit.Governor satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Gateway tries providers in order until one answers.
type Gateway struct {
	providers []Provider
	limiter   Limiter
	logger    log.Logger
}

// New builds a Gateway over providers in fallback order.
func New(limiter Limiter, logger log.Logger, providers ...Provider) *Gateway {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Gateway{providers: providers, limiter: limiter, logger: logger}
}

// Generate returns the first successful provider's reply. It returns
// ErrNotConfigured when no provider is configured, and the last provider
// error when all configured providers fail.
func (g *Gateway) Generate(ctx context.Context, msgs []Message) (string, error) {
	var lastErr error
	tried := 0
	for _, p := range g.providers {
		if !p.Configured() {
			continue
		}
		tried++
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
		reply, err := p.Generate(ctx, msgs)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		g.logger.Warn("provider failed, falling back", "provider", p.Name(), "error", err)
		lastErr = err
	}
	if tried == 0 {
		return "", ErrNotConfigured
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// Stream delivers the reply incrementally. A provider that fails before
// emitting anything falls through to the next; once output has reached cb
// the stream is committed and errors surface directly.
func (g *Gateway) Stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	var lastErr error
	tried := 0
	for _, p := range g.providers {
		if !p.Configured() {
			continue
		}
		tried++
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}

		emitted := false
		err := p.Stream(ctx, msgs, func(ctx context.Context, chunk string) error {
			emitted = true
			return cb(ctx, chunk)
		})
		if err == nil {
			return nil
		}
		if emitted || ctx.Err() != nil {
			return err
		}
		g.logger.Warn("provider failed, falling back", "provider", p.Name(), "error", err)
		lastErr = err
	}
	if tried == 0 {
		return ErrNotConfigured
	}
	return fmt.Errorf("all providers failed: %w", lastErr)
}

// Flatten renders a conversation as a single prompt for completion-style
// models, one "<Role>: <content>" line per message, ending with an open
// assistant turn.
func Flatten(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(titleRole(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// ExtractAssistant returns the text after the last "Assistant:" marker, for
// models that echo the prompt back. Output without the marker is returned
// unchanged.
func ExtractAssistant(output string) string {
	if i := strings.LastIndex(output, "Assistant:"); i >= 0 {
		return strings.TrimSpace(output[i+len("Assistant:"):])
	}
	return strings.TrimSpace(output)
}

func titleRole(role string) string {
	switch role {
	case RoleSystem:
		return "System"
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	}
	if role == "" {
		return "User"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
