// Package retrieval answers questions against the learned index.
//
// It merges results from any number of scopes (the shared project index plus
// a per-user one), formats them into a cited context block, and hands the
// block to a text generator. When no generator is configured the retrieved
// context itself is the answer.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/smartedupay/aicore/internal/log"
	"github.com/smartedupay/aicore/internal/store"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 6

// Result is one retrieved chunk with its provenance.
type Result struct {
	Path      string
	StartLine int
	Text      string
	Distance  float64
}

// Embedder is the slice of the embedding service retrieval needs.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Model(ctx context.Context) (string, error)
	Dimension(ctx context.Context) (int, error)
}

// scope is one index directory, loaded at most once.
type scope struct {
	name  string
	store *store.Store

	once sync.Once
	snap *store.Snapshot
}

// Service retrieves context from one or more scopes.
type Service struct {
	embedder Embedder
	scopes   []*scope
	logger   log.Logger
}

// NewService builds a retrieval service over the given scope stores, in
// priority order for logging only; results from all scopes compete on
// distance alone.
func NewService(embedder Embedder, logger log.Logger, stores map[string]*store.Store) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	svc := &Service{embedder: embedder, logger: logger}
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc.scopes = append(svc.scopes, &scope{name: name, store: stores[name]})
	}
	return svc
}

// load returns the scope's snapshot, or nil when the scope is unavailable.
// Unavailability is logged once and then cached; a scope never flips state
// within a process lifetime.
func (s *Service) load(ctx context.Context, sc *scope) *store.Snapshot {
	sc.once.Do(func() {
		snap, ok, err := sc.store.Load()
		if !ok {
			s.logger.Debug("index scope unavailable", "scope", sc.name, "error", err)
			return
		}
		model, merr := s.embedder.Model(ctx)
		dim, derr := s.embedder.Dimension(ctx)
		if merr != nil || derr != nil {
			s.logger.Debug("embedder unavailable for scope check", "scope", sc.name)
			return
		}
		if err := snap.CheckModel(model, dim); err != nil {
			s.logger.Warn("index scope rejected", "scope", sc.name, "error", err)
			return
		}
		sc.snap = snap
	})
	return sc.snap
}

// Retrieve returns the k nearest chunks across all available scopes, sorted
// ascending by cosine distance. With no available scope it returns an empty
// slice and no error, so callers degrade to an answer without context.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	var snaps []*store.Snapshot
	for _, sc := range s.scopes {
		if snap := s.load(ctx, sc); snap != nil {
			snaps = append(snaps, snap)
		}
	}
	if len(snaps) == 0 {
		return []Result{}, nil
	}

	vec, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var merged []Result
	for _, snap := range snaps {
		dists, idxs, err := snap.Index.Query(vec, k)
		if err != nil {
			return nil, fmt.Errorf("query index: %w", err)
		}
		for i, idx := range idxs {
			merged = append(merged, Result{
				Path:      snap.Meta[idx].Path,
				StartLine: snap.Meta[idx].StartLine,
				Text:      snap.Texts[idx],
				Distance:  dists[i],
			})
		}
	}

	sort.SliceStable(merged, func(a, b int) bool { return merged[a].Distance < merged[b].Distance })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// FormatContext renders results as citation blocks separated by blank lines:
//
//	[Source: routes/ai.py:71]
//	<chunk text>
func FormatContext(results []Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("[Source: %s:%d]\n%s", r.Path, r.StartLine, r.Text))
	}
	return strings.Join(blocks, "\n\n")
}
