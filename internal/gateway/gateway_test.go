package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartedupay/aicore/internal/log"
)

type fakeProvider struct {
	name       string
	configured bool
	reply      string
	err        error
	calls      int
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Generate(ctx context.Context, msgs []Message) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeProvider) Stream(ctx context.Context, msgs []Message, cb StreamCallback) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return cb(ctx, f.reply)
}

type countingLimiter struct{ waits int }

func (l *countingLimiter) Wait(context.Context) error {
	l.waits++
	return nil
}

func msgsFixture() []Message {
	return []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "what is the balance endpoint?"},
	}
}

func TestGenerateSkipsUnconfigured(t *testing.T) {
	skipped := &fakeProvider{name: "a", configured: false}
	used := &fakeProvider{name: "b", configured: true, reply: "answer"}

	g := New(&countingLimiter{}, log.NewNop(), skipped, used)
	reply, err := g.Generate(context.Background(), msgsFixture())
	require.NoError(t, err)
	assert.Equal(t, "answer", reply)
	assert.Zero(t, skipped.calls)
	assert.Equal(t, 1, used.calls)
}

func TestGenerateFallsThroughOnError(t *testing.T) {
	failing := &fakeProvider{name: "a", configured: true, err: errors.New("boom")}
	backup := &fakeProvider{name: "b", configured: true, reply: "from backup"}

	g := New(&countingLimiter{}, log.NewNop(), failing, backup)
	reply, err := g.Generate(context.Background(), msgsFixture())
	require.NoError(t, err)
	assert.Equal(t, "from backup", reply)
	assert.Equal(t, 1, failing.calls)
}

func TestGenerateNoProviders(t *testing.T) {
	g := New(&countingLimiter{}, log.NewNop(), &fakeProvider{name: "a"})
	_, err := g.Generate(context.Background(), msgsFixture())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGenerateAllFail(t *testing.T) {
	a := &fakeProvider{name: "a", configured: true, err: errors.New("a down")}
	b := &fakeProvider{name: "b", configured: true, err: errors.New("b down")}

	g := New(&countingLimiter{}, log.NewNop(), a, b)
	_, err := g.Generate(context.Background(), msgsFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b down")
}

func TestGenerateWaitsPerAttempt(t *testing.T) {
	limiter := &countingLimiter{}
	a := &fakeProvider{name: "a", configured: true, err: errors.New("down")}
	b := &fakeProvider{name: "b", configured: true, reply: "ok"}

	g := New(limiter, log.NewNop(), a, b)
	_, err := g.Generate(context.Background(), msgsFixture())
	require.NoError(t, err)
	assert.Equal(t, 2, limiter.waits)
}

func TestStreamFallsThroughOnlyBeforeOutput(t *testing.T) {
	failing := &fakeProvider{name: "a", configured: true, err: errors.New("boom")}
	backup := &fakeProvider{name: "b", configured: true, reply: "streamed"}

	var got string
	g := New(&countingLimiter{}, log.NewNop(), failing, backup)
	err := g.Stream(context.Background(), msgsFixture(), func(_ context.Context, chunk string) error {
		got += chunk
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed", got)
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	p := &fakeProvider{name: "a", configured: true, reply: "chunk"}
	backup := &fakeProvider{name: "b", configured: true, reply: "other"}

	g := New(&countingLimiter{}, log.NewNop(), p, backup)
	abort := errors.New("stop")
	err := g.Stream(context.Background(), msgsFixture(), func(context.Context, string) error {
		return abort
	})
	assert.ErrorIs(t, err, abort)
	assert.Zero(t, backup.calls)
}

func TestFlatten(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "you are helpful"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "explain fees"},
	}
	want := "System: you are helpful\nUser: hi\nAssistant: hello\nUser: explain fees\nAssistant:"
	assert.Equal(t, want, Flatten(msgs))
}

func TestExtractAssistant(t *testing.T) {
	echoed := "System: x\nUser: hi\nAssistant: hello there"
	assert.Equal(t, "hello there", ExtractAssistant(echoed))
	assert.Equal(t, "plain reply", ExtractAssistant("plain reply"))

	multi := "Assistant: first\nUser: again\nAssistant: second"
	assert.Equal(t, "second", ExtractAssistant(multi))
}

func TestStatusErrorTransient(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, (&StatusError{Code: code}).Transient(), "code %d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, (&StatusError{Code: code}).Transient(), "code %d", code)
	}
}
