// Package embed turns text into unit-norm embedding vectors.
//
// A Backend talks to one embedding provider. Service wraps a lazily
// constructed Backend with an LRU cache so repeated texts (common during
// repeated learn runs over a mostly unchanged corpus) skip the network.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/smartedupay/aicore/internal/log"
)

// ErrNotConfigured indicates no embedding backend could be constructed from
// the current configuration.
var ErrNotConfigured = errors.New("embedding backend not configured")

// DefaultCacheSize bounds the embedding cache.
const DefaultCacheSize = 4096

// Backend produces embeddings for batches of texts.
type Backend interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the width of produced vectors.
	Dimension() int
	// Model identifies the embedding model for manifest stamping.
	Model() string
}

// Factory constructs a Backend on first use.
type Factory func(ctx context.Context) (Backend, error)

// Service is a caching front for a lazily initialized Backend.
// Safe for concurrent use.
type Service struct {
	factory Factory
	logger  log.Logger

	mu      sync.Mutex
	backend Backend
	initErr error

	cache *lru.Cache[string, []float32]
}

// NewService wraps factory with caching. The backend is not constructed until
// the first Embed call, so building a Service is free when AI is disabled.
func NewService(factory Factory, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	cache, _ := lru.New[string, []float32](DefaultCacheSize)
	return &Service{factory: factory, logger: logger, cache: cache}
}

func (s *Service) init(ctx context.Context) (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend != nil || s.initErr != nil {
		return s.backend, s.initErr
	}
	b, err := s.factory(ctx)
	if err != nil {
		s.initErr = err
		return nil, err
	}
	s.logger.Debug("embedding backend ready", "model", b.Model(), "dimension", b.Dimension())
	s.backend = b
	return b, nil
}

// Embed returns unit-norm vectors for texts, serving cached entries where
// possible and batching the rest through the backend.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	backend, err := s.init(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	for i, t := range texts {
		if vec, ok := s.cache.Get(cacheKey(t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingAt = append(missingAt, i)
	}

	if len(missing) > 0 {
		vecs, err := backend.Embed(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("embed %d texts: %w", len(missing), err)
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), len(missing))
		}
		for j, vec := range vecs {
			Normalize(vec)
			out[missingAt[j]] = vec
			s.cache.Add(cacheKey(missing[j]), vec)
		}
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimension reports the backend's vector width, initializing it if needed.
func (s *Service) Dimension(ctx context.Context) (int, error) {
	b, err := s.init(ctx)
	if err != nil {
		return 0, err
	}
	return b.Dimension(), nil
}

// Model reports the backend's model identifier, initializing it if needed.
func (s *Service) Model(ctx context.Context) (string, error) {
	b, err := s.init(ctx)
	if err != nil {
		return "", err
	}
	return b.Model(), nil
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Normalize scales vec to unit length in place. Zero vectors are left as-is.
func Normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
