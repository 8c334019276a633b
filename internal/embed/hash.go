package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// HashBackend derives deterministic pseudo-embeddings from a SHA-256 of the
// text. It needs no credentials or network, which makes learn and query flows
// exercisable offline. Identical texts always map to identical vectors;
// distances between unrelated texts are meaningless.
type HashBackend struct {
	dimension int
}

// NewHashBackend returns a deterministic offline backend.
func NewHashBackend(dimension int) *HashBackend {
	if dimension <= 0 {
		dimension = 64
	}
	return &HashBackend{dimension: dimension}
}

func (h *HashBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashBackend) vector(text string) []float32 {
	vec := make([]float32, h.dimension)
	seed := sha256.Sum256([]byte(text))
	state := seed[:]
	for i := 0; i < h.dimension; i += 8 {
		state2 := sha256.Sum256(state)
		state = state2[:]
		for j := 0; j < 8 && i+j < h.dimension; j++ {
			bits := binary.LittleEndian.Uint32(state[j*4 : j*4+4])
			// Map to [-1, 1).
			vec[i+j] = float32(bits)/float32(1<<31) - 1
		}
	}
	Normalize(vec)
	return vec
}

func (h *HashBackend) Dimension() int { return h.dimension }

func (h *HashBackend) Model() string { return "hash-v1" }
