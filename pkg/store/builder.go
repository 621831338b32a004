package store

import (
	"context"
	"fmt"
	"log"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
)

type BuilderConfig struct {
	BatchSize int
	// OnProgress is called after each embedded batch with the running total.
	OnProgress func(done, total int)
}

// Builder embeds chunks and loads them into an Index.
type Builder struct {
	config   BuilderConfig
	embedder types.Embedder
}

func NewBuilder(embedder types.Embedder, config BuilderConfig) *Builder {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Builder{
		config:   config,
		embedder: embedder,
	}
}

// Build embeds every chunk and loads the result into index. With no chunks
// there is nothing to build and Build returns a nil Index. Any failure
// returns an error without loading anything.
func (b *Builder) Build(ctx context.Context, chunks []models.Chunk, index types.Index) (types.Index, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += b.config.BatchSize {
		end := min(start+b.config.BatchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := b.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)

		if b.config.OnProgress != nil {
			b.config.OnProgress(len(vectors), len(chunks))
		}
	}

	if err := index.Load(ctx, chunks, vectors); err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	log.Printf("Indexed %d chunks (dimension %d)", len(chunks), len(vectors[0]))
	return index, nil
}

// Retriever finds the chunks most similar to a query.
type Retriever struct {
	embedder types.Embedder
	index    types.Index
	k        int
}

func NewRetriever(embedder types.Embedder, index types.Index, k int) *Retriever {
	if k <= 0 {
		k = 3
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		k:        k,
	}
}

// Retrieve returns at most k chunks, fewer only when the index is smaller.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.Chunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := r.index.Search(ctx, vector, r.k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	return chunks, nil
}
