package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
)

type EmbedderConfig struct {
	BatchSize int
	Guard     *Guard
}

// Embedder turns text into vectors through the provider's embedding model.
// Documents and queries go through the same model so their vectors compare.
type Embedder struct {
	config EmbedderConfig
	inner  embeddings.Embedder
}

func NewEmbedder(client embeddings.EmbedderClient, config EmbedderConfig) (*Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Guard == nil {
		config.Guard = NewGuard(GuardConfig{})
	}

	inner, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		config: config,
		inner:  inner,
	}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := e.config.Guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = e.inner.EmbedDocuments(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := e.config.Guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vector, err = e.inner.EmbedQuery(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	return vector, nil
}
