package types

import (
	"context"

	"github.com/xhad/tutor/internal/models"
)

// Core interfaces
type Index interface {
	Load(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]models.Chunk, error)
	Len() int
	Close()
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Processor interface {
	Process(docs []models.Document) []models.Chunk
}
