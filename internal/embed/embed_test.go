package embed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartedupay/aicore/internal/log"
)

type countingBackend struct {
	calls   int
	batched [][]string
}

func (c *countingBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.batched = append(c.batched, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (c *countingBackend) Dimension() int { return 3 }
func (c *countingBackend) Model() string  { return "counting-v1" }

func serviceFor(b Backend) *Service {
	return NewService(func(context.Context) (Backend, error) { return b, nil }, log.NewNop())
}

func vecNorm(v []float32) float64 {
	var n float64
	for _, x := range v {
		n += float64(x) * float64(x)
	}
	return math.Sqrt(n)
}

func TestServiceNormalizesOutput(t *testing.T) {
	svc := serviceFor(&countingBackend{})
	vecs, err := svc.Embed(context.Background(), []string{"alpha", "much longer text"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, vecNorm(v), 1e-6)
	}
}

func TestServiceCachesRepeatedTexts(t *testing.T) {
	backend := &countingBackend{}
	svc := serviceFor(backend)
	ctx := context.Background()

	first, err := svc.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls)

	// Second call mixes cached and new texts; only "c" reaches the backend.
	second, err := svc.Embed(ctx, []string{"a", "c", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, []string{"c"}, backend.batched[1])
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[1], second[2])
}

func TestServiceLazyInit(t *testing.T) {
	built := 0
	svc := NewService(func(context.Context) (Backend, error) {
		built++
		return &countingBackend{}, nil
	}, log.NewNop())
	assert.Equal(t, 0, built)

	_, err := svc.EmbedOne(context.Background(), "x")
	require.NoError(t, err)
	_, err = svc.EmbedOne(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, 1, built)
}

func TestServiceInitErrorIsSticky(t *testing.T) {
	attempts := 0
	svc := NewService(func(context.Context) (Backend, error) {
		attempts++
		return nil, ErrNotConfigured
	}, log.NewNop())

	_, err := svc.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, 1, attempts)
}

func TestServiceEmptyInput(t *testing.T) {
	svc := NewService(func(context.Context) (Backend, error) {
		return nil, errors.New("must not be called")
	}, log.NewNop())
	vecs, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestHashBackendDeterministic(t *testing.T) {
	h := NewHashBackend(64)
	ctx := context.Background()

	a1, err := h.Embed(ctx, []string{"account balance"})
	require.NoError(t, err)
	a2, err := h.Embed(ctx, []string{"account balance"})
	require.NoError(t, err)
	b, err := h.Embed(ctx, []string{"something else"})
	require.NoError(t, err)

	assert.Equal(t, a1[0], a2[0])
	assert.NotEqual(t, a1[0], b[0])
	assert.InDelta(t, 1.0, vecNorm(a1[0]), 1e-6)
	assert.Len(t, a1[0], 64)
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)
	assert.Equal(t, []float32{0, 0, 0}, v)
}
