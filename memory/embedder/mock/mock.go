// Package mock provides a deterministic embedder for tests and local
// development. Identical texts always produce identical vectors; there
// is no real semantic similarity.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates hash-seeded pseudo-random unit vectors.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder. A non-positive dimension defaults to
// 384, matching all-MiniLM-L6-v2.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from the text hash.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	// Hash seeds an LCG so every dimension is reproducible.
	seed := h.Sum64()
	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts the vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
