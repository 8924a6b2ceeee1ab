package embedding

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
)

const hashDimensions = 256

// HashEngine produces deterministic pseudo-embeddings derived from an
// FNV hash of the input text. It exists so retrieval works without any
// embedding backend configured (offline development, tests). Vectors
// from this engine must never share a corpus with live-model vectors;
// the retrieval store enforces that by recording the engine name.
type HashEngine struct{}

// NewHashEngine creates the deterministic fallback engine.
func NewHashEngine() *HashEngine {
	return &HashEngine{}
}

// Embed generates a unit-normalized pseudo-embedding. Identical input
// always yields the identical vector.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDimensions)

	var seed [8]byte
	h := fnv.New64a()
	h.Write([]byte(text))
	base := h.Sum64()

	var norm float64
	for i := range vec {
		binary.LittleEndian.PutUint64(seed[:], base+uint64(i))
		h.Reset()
		h.Write([]byte(text))
		h.Write(seed[:])
		v := h.Sum64()
		// Map the hash onto [-1, 1).
		vec[i] = float32(int64(v)) / float32(math.MaxInt64)
		norm += float64(vec[i]) * float64(vec[i])
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch generates pseudo-embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of pseudo-embeddings.
func (e *HashEngine) Dimensions() int {
	return hashDimensions
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash:fnv64a"
}
