package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartedupay/aicore/internal/gateway"
	"github.com/smartedupay/aicore/internal/log"
	"github.com/smartedupay/aicore/internal/store"
)

type fakeGenerator struct {
	reply string
	err   error
	msgs  []gateway.Message
}

func (f *fakeGenerator) Generate(_ context.Context, msgs []gateway.Message) (string, error) {
	f.msgs = msgs
	return f.reply, f.err
}

func (f *fakeGenerator) Stream(ctx context.Context, msgs []gateway.Message, cb gateway.StreamCallback) error {
	f.msgs = msgs
	if f.err != nil {
		return f.err
	}
	return cb(ctx, f.reply)
}

func answererWith(t *testing.T, gen Generator) *Answerer {
	t.Helper()
	root := t.TempDir()
	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{
		"project": projectScope(t, root),
	})
	return NewAnswerer(svc, gen, log.NewNop(), 2)
}

func TestAnswerIncludesContextInPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "the wallet route serves balances"}
	a := answererWith(t, gen)

	reply, err := a.Answer(context.Background(), "where is the balance code?")
	require.NoError(t, err)
	assert.Equal(t, "the wallet route serves balances", reply)

	require.Len(t, gen.msgs, 2)
	assert.Equal(t, gateway.RoleSystem, gen.msgs[0].Role)
	assert.Contains(t, gen.msgs[1].Content, "[Source: routes/wallet.py:1]")
	assert.Contains(t, gen.msgs[1].Content, "Question: where is the balance code?")
}

func TestAnswerFallsBackWithoutGenerator(t *testing.T) {
	a := answererWith(t, nil)

	reply, err := a.Answer(context.Background(), "where is the balance code?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "AI not configured. Top retrieved context:"))
	assert.Contains(t, reply, "[Source: routes/wallet.py:1]")
}

func TestAnswerFallsBackWhenUnconfigured(t *testing.T) {
	gen := &fakeGenerator{err: gateway.ErrNotConfigured}
	a := answererWith(t, gen)

	reply, err := a.Answer(context.Background(), "where is the balance code?")
	require.NoError(t, err)
	assert.Contains(t, reply, "AI not configured.")
}

func TestAnswerSurfacesProviderFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("all providers failed: boom")}
	a := answererWith(t, gen)

	_, err := a.Answer(context.Background(), "anything")
	assert.Error(t, err)
}

func TestAnswerFallbackWithoutAnyIndex(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{
		"project": store.New(t.TempDir()+"/none", log.NewNop()),
	})
	a := NewAnswerer(svc, nil, log.NewNop(), 2)

	reply, err := a.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Contains(t, reply, "none available")
}

func TestAnswerFallsBackOnEmptyReply(t *testing.T) {
	gen := &fakeGenerator{reply: ""}
	a := answererWith(t, gen)

	reply, err := a.Answer(context.Background(), "where is the balance code?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "AI not configured. Top retrieved context:"))
	assert.Contains(t, reply, "[Source: routes/wallet.py:1]")
}

func TestAnswerStreamFallsBackOnEmptyStream(t *testing.T) {
	gen := &fakeGenerator{reply: ""}
	a := answererWith(t, gen)

	var got string
	err := a.AnswerStream(context.Background(), "where is the balance code?", func(_ context.Context, chunk string) error {
		got += chunk
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, got, "AI not configured.")
	assert.Contains(t, got, "[Source: routes/wallet.py:1]")
}

func TestDepthVariesByIntent(t *testing.T) {
	a := answererWith(t, nil)

	assert.Equal(t, 2, a.depth("which function handles topups?"))
	assert.Equal(t, 2, a.depth("what columns does the wallet table have?"))
	assert.Equal(t, 1, a.depth("hello there"))
}

func TestAnswerStream(t *testing.T) {
	gen := &fakeGenerator{reply: "streamed answer"}
	a := answererWith(t, gen)

	var got string
	err := a.AnswerStream(context.Background(), "question", func(_ context.Context, chunk string) error {
		got += chunk
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed answer", got)
}
