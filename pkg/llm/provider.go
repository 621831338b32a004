package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

type ProviderConfig struct {
	Name           string // googleai, openai or ollama
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// Provider holds the hosted clients the tutor talks to: one for completions
// and one for embeddings.
type Provider struct {
	Name       string
	Model      llms.Model
	Embeddings embeddings.EmbedderClient
}

func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	switch config.Name {
	case "googleai", "":
		client, err := googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model),
			googleai.WithDefaultEmbeddingModel(config.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google AI client: %w", err)
		}
		return &Provider{Name: "googleai", Model: client, Embeddings: client}, nil

	case "openai":
		opts := []openai.Option{
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
			openai.WithEmbeddingModel(config.EmbeddingModel),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		return &Provider{Name: "openai", Model: client, Embeddings: client}, nil

	case "ollama":
		chat, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		emb, err := ollama.New(ollama.WithModel(config.EmbeddingModel),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		return &Provider{Name: "ollama", Model: chat, Embeddings: emb}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", config.Name)
	}
}
