package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
)

var (
	_ types.Index = (*MemoryIndex)(nil)
	_ types.Index = (*VectorStore)(nil)
)

// ErrDimensionMismatch is returned when vectors of different lengths meet.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// MemoryIndex keeps every chunk and its vector in process memory and
// answers queries by exhaustive cosine similarity.
type MemoryIndex struct {
	mu        sync.RWMutex
	chunks    []models.Chunk
	vectors   [][]float32
	dimension int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// Load replaces the contents of the index. Either every pair is accepted or
// the index is left untouched.
func (m *MemoryIndex) Load(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	dim, err := checkVectors(chunks, vectors)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c := make([]models.Chunk, len(chunks))
	copy(c, chunks)
	v := make([][]float32, len(vectors))
	copy(v, vectors)

	m.mu.Lock()
	m.chunks, m.vectors, m.dimension = c, v, dim
	m.mu.Unlock()
	return nil
}

// Search returns up to k chunks ordered by similarity, highest first. Equal
// scores keep their load order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]models.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), m.dimension)
	}

	type scored struct {
		idx   int
		score float32
	}
	results := make([]scored, len(m.chunks))
	for i := range m.chunks {
		results[i] = scored{idx: i, score: CosineSimilarity(query, m.vectors[i])}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if k > len(results) {
		k = len(results)
	}
	out := make([]models.Chunk, k)
	for i := 0; i < k; i++ {
		out[i] = m.chunks[results[i].idx]
	}
	return out, nil
}

func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryIndex) Close() {}

// CosineSimilarity returns a value in [-1, 1]; vectors of different length
// or zero norm score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// checkVectors validates a chunk/vector batch and returns its dimension.
func checkVectors(chunks []models.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return 0, errors.New("nothing to load")
	}

	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector for chunk %s", ErrDimensionMismatch, chunks[0].ID)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: chunk %s has %d, expected %d", ErrDimensionMismatch, chunks[i].ID, len(v), dim)
		}
	}
	return dim, nil
}
