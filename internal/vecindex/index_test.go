package vecindex

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(vals ...float32) []float32 {
	var norm float64
	for _, v := range vals {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func TestFitClampsCapacity(t *testing.T) {
	tests := []struct {
		name      string
		rows      int
		neighbors int
		wantKMax  int
	}{
		{"fewer rows than capacity", 3, 8, 3},
		{"more rows than capacity", 20, 8, 8},
		{"zero capacity uses default", 20, 0, 8},
		{"single row", 1, 8, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embs := make([][]float32, tt.rows)
			for i := range embs {
				embs[i] = unit(float32(i+1), 1)
			}
			ix, err := Fit(embs, tt.neighbors)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKMax, ix.KMax)
			assert.Equal(t, tt.rows, ix.Len())
		})
	}
}

func TestFitErrors(t *testing.T) {
	_, err := Fit(nil, 8)
	assert.ErrorIs(t, err, ErrEmptyMatrix)

	_, err = Fit([][]float32{{1, 0}, {1, 0, 0}}, 8)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQueryOrdering(t *testing.T) {
	// Vectors at increasing angles from the x axis. Querying with the x axis
	// must return them in angle order.
	embs := [][]float32{
		unit(1, 4), // far
		unit(1, 0), // exact match
		unit(1, 1), // middle
		unit(1, 2),
	}
	ix, err := Fit(embs, 8)
	require.NoError(t, err)

	dists, idxs, err := ix.Query(unit(1, 0), 3)
	require.NoError(t, err)
	require.Len(t, dists, 3)

	assert.Equal(t, []int{1, 2, 3}, idxs)
	assert.InDelta(t, 0, dists[0], 1e-6)
	for i := 1; i < len(dists); i++ {
		assert.Less(t, dists[i-1], dists[i])
	}
}

func TestQueryStableTies(t *testing.T) {
	same := unit(3, 4)
	embs := [][]float32{same, unit(0, 1), same, same}
	ix, err := Fit(embs, 8)
	require.NoError(t, err)

	_, idxs, err := ix.Query(same, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3, 1}, idxs)
}

func TestQueryClampsK(t *testing.T) {
	embs := [][]float32{unit(1, 0), unit(0, 1)}
	ix, err := Fit(embs, 8)
	require.NoError(t, err)

	dists, idxs, err := ix.Query(unit(1, 0), 10)
	require.NoError(t, err)
	assert.Len(t, dists, 2)
	assert.Len(t, idxs, 2)

	dists, idxs, err = ix.Query(unit(1, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, dists)
	assert.Empty(t, idxs)
}

func TestQueryDimensionMismatch(t *testing.T) {
	ix, err := Fit([][]float32{unit(1, 0)}, 8)
	require.NoError(t, err)

	_, _, err = ix.Query([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineDistanceRange(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance(unit(1, 0), unit(1, 0)), 1e-6)
	assert.InDelta(t, 1, CosineDistance(unit(1, 0), unit(0, 1)), 1e-6)
	assert.InDelta(t, 2, CosineDistance(unit(1, 0), unit(-1, 0)), 1e-6)
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0}, unit(1, 0)))
}

func TestGobRoundTrip(t *testing.T) {
	embs := [][]float32{unit(1, 0), unit(1, 1), unit(0, 1)}
	ix, err := Fit(embs, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(ix))

	var back Index
	require.NoError(t, gob.NewDecoder(&buf).Decode(&back))

	assert.Equal(t, ix.KMax, back.KMax)
	assert.Equal(t, ix.Dimension, back.Dimension)

	wantD, wantI, err := ix.Query(unit(1, 1), 2)
	require.NoError(t, err)
	gotD, gotI, err := back.Query(unit(1, 1), 2)
	require.NoError(t, err)
	assert.Equal(t, wantI, gotI)
	assert.Equal(t, wantD, gotD)
}
