// Package vecindex implements an exact nearest-neighbor index over unit-norm
// embedding vectors under cosine distance.
//
// An Index is an immutable snapshot: it is fitted once over a fixed embedding
// matrix during an offline learn run and only queried afterwards. A new learn
// run produces a new snapshot rather than mutating the old one.
package vecindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultNeighbors is the default fitted neighbor capacity.
const DefaultNeighbors = 8

var (
	// ErrEmptyMatrix indicates Fit was called with no vectors.
	ErrEmptyMatrix = errors.New("empty embedding matrix")

	// ErrDimensionMismatch indicates a vector's length disagrees with the
	// fitted dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Index answers "k nearest vectors" queries by exact scan.
//
// Fields are exported for gob serialization only; treat a fitted Index as
// read-only.
type Index struct {
	Vectors   [][]float32
	Dimension int
	KMax      int
}

// Fit builds an Index over embeddings with neighbor capacity
// min(neighbors, len(embeddings)), tolerating corpora smaller than the
// configured capacity.
func Fit(embeddings [][]float32, neighbors int) (*Index, error) {
	if len(embeddings) == 0 {
		return nil, ErrEmptyMatrix
	}
	if neighbors <= 0 {
		neighbors = DefaultNeighbors
	}

	dim := len(embeddings[0])
	for i, v := range embeddings {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: row %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	return &Index{
		Vectors:   embeddings,
		Dimension: dim,
		KMax:      min(neighbors, len(embeddings)),
	}, nil
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int { return len(ix.Vectors) }

// Query returns the cosine distances and positions of the k nearest vectors,
// sorted ascending by distance. Ties keep insertion order. k is clamped to
// the fitted capacity and the corpus size.
func (ix *Index) Query(vec []float32, k int) ([]float64, []int, error) {
	if len(vec) != ix.Dimension {
		return nil, nil, fmt.Errorf("%w: query has %d dims, want %d", ErrDimensionMismatch, len(vec), ix.Dimension)
	}
	if k <= 0 {
		return nil, nil, nil
	}
	k = min(k, ix.KMax, len(ix.Vectors))

	type scored struct {
		dist float64
		idx  int
	}
	all := make([]scored, len(ix.Vectors))
	for i, v := range ix.Vectors {
		all[i] = scored{dist: CosineDistance(vec, v), idx: i}
	}

	// SliceStable keeps insertion order for cosine-identical vectors.
	sort.SliceStable(all, func(a, b int) bool { return all[a].dist < all[b].dist })

	dists := make([]float64, k)
	idxs := make([]int, k)
	for i := 0; i < k; i++ {
		dists[i] = all[i].dist
		idxs[i] = all[i].idx
	}
	return dists, idxs, nil
}

// CosineDistance computes 1 - cosine similarity, in [0, 2].
// For unit-norm vectors this reduces to 1 - dot(a, b).
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
