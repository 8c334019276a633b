package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smartedupay/aicore/internal/gateway"
	"github.com/smartedupay/aicore/internal/log"
)

// fallbackPrefix introduces the raw context when no provider is configured.
const fallbackPrefix = "AI not configured. Top retrieved context:\n\n"

const systemPrompt = `You are the built-in assistant of a school payment and administration platform.
Answer using the provided source context when it is relevant, citing file paths when helpful.
If the context does not cover the question, say so instead of guessing.`

// Generator produces text from a conversation. *gateway.Gateway satisfies it.
type Generator interface {
	Generate(ctx context.Context, msgs []gateway.Message) (string, error)
	Stream(ctx context.Context, msgs []gateway.Message, cb gateway.StreamCallback) error
}

// Answerer combines retrieval with generation.
type Answerer struct {
	svc    *Service
	gen    Generator
	logger log.Logger
	topK   int
}

// NewAnswerer wires retrieval to a generator. gen may be nil when no provider
// is configured; answers then fall back to the retrieved context.
func NewAnswerer(svc *Service, gen Generator, logger log.Logger, topK int) *Answerer {
	if logger == nil {
		logger = log.NewNop()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{svc: svc, gen: gen, logger: logger, topK: topK}
}

// Answer retrieves context for question and generates a reply. Configuration
// problems degrade to the raw context; retrieval problems degrade to an
// answer without context.
func (a *Answerer) Answer(ctx context.Context, question string) (string, error) {
	msgs, contextBlock := a.prepare(ctx, question)

	if a.gen == nil {
		return fallbackAnswer(contextBlock), nil
	}
	reply, err := a.gen.Generate(ctx, msgs)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return fallbackAnswer(contextBlock), nil
		}
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		// The local runtime reports failure as an empty reply rather
		// than an error; the retrieved context is still an answer.
		a.logger.Warn("empty reply from providers, answering with retrieved context")
		return fallbackAnswer(contextBlock), nil
	}
	return reply, nil
}

// AnswerStream is Answer with incremental delivery through cb.
func (a *Answerer) AnswerStream(ctx context.Context, question string, cb gateway.StreamCallback) error {
	msgs, contextBlock := a.prepare(ctx, question)

	if a.gen == nil {
		return cb(ctx, fallbackAnswer(contextBlock))
	}
	var emitted bool
	err := a.gen.Stream(ctx, msgs, func(ctx context.Context, chunk string) error {
		if strings.TrimSpace(chunk) != "" {
			emitted = true
		}
		return cb(ctx, chunk)
	})
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			return cb(ctx, fallbackAnswer(contextBlock))
		}
		return fmt.Errorf("stream answer: %w", err)
	}
	if !emitted {
		a.logger.Warn("empty stream from providers, answering with retrieved context")
		return cb(ctx, fallbackAnswer(contextBlock))
	}
	return nil
}

// depth picks how many chunks to retrieve. Code and data questions get the
// full depth; small talk does not need half the index quoted back at it.
func (a *Answerer) depth(question string) int {
	if Classify(question) == IntentGeneral {
		return (a.topK + 1) / 2
	}
	return a.topK
}

func (a *Answerer) prepare(ctx context.Context, question string) ([]gateway.Message, string) {
	results, err := a.svc.Retrieve(ctx, question, a.depth(question))
	if err != nil {
		a.logger.Warn("retrieval failed, answering without context", "error", err)
		results = nil
	}
	contextBlock := FormatContext(results)

	user := question
	if contextBlock != "" {
		user = fmt.Sprintf("Context from the codebase:\n\n%s\n\nQuestion: %s", contextBlock, question)
	}
	msgs := []gateway.Message{
		{Role: gateway.RoleSystem, Content: systemPrompt},
		{Role: gateway.RoleUser, Content: user},
	}
	return msgs, contextBlock
}

func fallbackAnswer(contextBlock string) string {
	if contextBlock == "" {
		return strings.TrimSuffix(fallbackPrefix, "\n\n") + " none available."
	}
	return fallbackPrefix + contextBlock
}

// Intent is a coarse question category used to pick retrieval depth.
type Intent string

const (
	IntentCode    Intent = "code"
	IntentData    Intent = "data"
	IntentGeneral Intent = "general"
)

var (
	codeWords = []string{"function", "route", "endpoint", "handler", "class", "module", "file", "bug", "error", "code"}
	dataWords = []string{"model", "table", "column", "field", "schema", "database", "balance", "payment", "invoice", "record"}
)

// Classify maps a question to a coarse intent by keyword match.
func Classify(question string) Intent {
	q := strings.ToLower(question)
	for _, w := range codeWords {
		if strings.Contains(q, w) {
			return IntentCode
		}
	}
	for _, w := range dataWords {
		if strings.Contains(q, w) {
			return IntentData
		}
	}
	return IntentGeneral
}
