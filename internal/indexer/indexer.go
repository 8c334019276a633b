// Package indexer runs the offline learn pipeline: scan a corpus, chunk it,
// embed the chunks, fit the nearest-neighbor index, and persist everything
// as one scope.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smartedupay/aicore/internal/corpus"
	"github.com/smartedupay/aicore/internal/embed"
	"github.com/smartedupay/aicore/internal/graph"
	"github.com/smartedupay/aicore/internal/log"
	"github.com/smartedupay/aicore/internal/store"
	"github.com/smartedupay/aicore/internal/vecindex"
)

// Options tunes a learn run.
type Options struct {
	MaxLines  int
	Overlap   int
	Neighbors int
	// WithGraph also extracts and persists the knowledge graph. Enabled
	// for the shared project scope, skipped for personal corpora.
	WithGraph bool
}

// Result summarizes a completed run.
type Result struct {
	Files  int
	Chunks int
}

// Indexer builds one scope from a corpus root.
type Indexer struct {
	scanner  *corpus.Scanner
	embedder *embed.Service
	store    *store.Store
	logger   log.Logger
	opts     Options
}

// New wires a pipeline for the given scope store.
func New(scanner *corpus.Scanner, embedder *embed.Service, st *store.Store, logger log.Logger, opts Options) *Indexer {
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = corpus.DefaultMaxLines
	}
	if opts.Overlap <= 0 {
		opts.Overlap = corpus.DefaultOverlap
	}
	if opts.Neighbors <= 0 {
		opts.Neighbors = vecindex.DefaultNeighbors
	}
	return &Indexer{scanner: scanner, embedder: embedder, store: st, logger: logger, opts: opts}
}

// Run indexes root and persists the scope. An empty corpus is an error; a
// half-written scope is never left behind thanks to per-artifact atomic
// writes.
func (ix *Indexer) Run(ctx context.Context, root string) (*Result, error) {
	started := time.Now()

	files, err := ix.scanner.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}

	var (
		texts []string
		meta  []store.ChunkMeta
		kg    = graph.New()
		read  int
	)
	for _, rel := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			ix.logger.Warn("skipping unreadable file", "path", rel, "error", err)
			continue
		}
		read++
		text := string(content)
		if ix.opts.WithGraph {
			kg.AddFile(rel, text)
		}
		for _, chunk := range corpus.Split(text, ix.opts.MaxLines, ix.opts.Overlap) {
			texts = append(texts, chunk.Text)
			meta = append(meta, store.ChunkMeta{Path: rel, StartLine: chunk.StartLine})
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no indexable content under %s", root)
	}

	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}

	index, err := vecindex.Fit(embeddings, ix.opts.Neighbors)
	if err != nil {
		return nil, fmt.Errorf("fit index: %w", err)
	}

	model, err := ix.embedder.Model(ctx)
	if err != nil {
		return nil, err
	}
	dim, err := ix.embedder.Dimension(ctx)
	if err != nil {
		return nil, err
	}

	snap := &store.Snapshot{
		Embeddings: embeddings,
		Texts:      texts,
		Meta:       meta,
		Index:      index,
		Manifest: store.Manifest{
			Model:     model,
			Dimension: dim,
			Chunks:    len(texts),
			CreatedAt: time.Now().UTC(),
		},
	}
	if err := ix.store.Save(snap); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	if ix.opts.WithGraph {
		kg.Finalize()
		if err := ix.store.SaveGraph(kg); err != nil {
			return nil, fmt.Errorf("persist knowledge graph: %w", err)
		}
	}

	ix.logger.Info("learn run complete",
		"root", root,
		"files", read,
		"chunks", len(texts),
		"dir", ix.store.Dir(),
		"elapsed", time.Since(started).Round(time.Millisecond))
	return &Result{Files: read, Chunks: len(texts)}, nil
}
