package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/conversation"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/loader"
	"github.com/xhad/tutor/pkg/pipeline"
	"github.com/xhad/tutor/pkg/processor"
	"github.com/xhad/tutor/pkg/scraper"
	"github.com/xhad/tutor/pkg/speech"
	"github.com/xhad/tutor/pkg/store"
)

// loadConfig reads .env, then the YAML config, and validates the result.
func loadConfig(path string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to read .env: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}

// newProviders connects to the configured model provider. Without
// credentials it returns empty Providers so the pipeline reports not ready.
func newProviders(ctx context.Context, cfg *config.Config) (pipeline.Providers, error) {
	providers := pipeline.Providers{Name: cfg.LLM.Provider}
	if !cfg.HasCredential() {
		log.Printf("WARNING: no API key found for provider %s; the tutor will not answer questions", cfg.LLM.Provider)
		return providers, nil
	}

	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Name:           cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		log.Printf("WARNING: %v; the tutor will not answer questions", err)
		return providers, nil
	}

	guard := llm.NewGuard(llm.GuardConfig{
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		RateLimit:  cfg.LLM.RateLimit,
	})

	chat, err := llm.NewWithConfig(provider.Model, llm.ChatConfig{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Guard:       guard,
	})
	if err != nil {
		return providers, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	embedder, err := llm.NewEmbedder(provider.Embeddings, llm.EmbedderConfig{
		BatchSize: cfg.Index.BatchSize,
		Guard:     guard,
	})
	if err != nil {
		return providers, err
	}

	providers.Chat = chat
	providers.Embedder = embedder
	return providers, nil
}

func pipelineConfig(cfg *config.Config, onProgress func(done, total int)) pipeline.Config {
	return pipeline.Config{
		Loader: loader.LoaderConfig{
			Path:       cfg.Documents.Path,
			Extensions: cfg.Documents.Extensions,
		},
		SeedURLs: cfg.Documents.URLs,
		Scraper: scraper.ScraperConfig{
			MaxDepth:  cfg.Documents.MaxDepth,
			RateLimit: cfg.Documents.RateLimit,
		},
		Processor: processor.ProcessorConfig{
			ChunkSize:    cfg.Processor.ChunkSize,
			ChunkOverlap: chunkOverlap(cfg.Processor.ChunkOverlap),
		},
		Builder: store.BuilderConfig{
			BatchSize:  cfg.Index.BatchSize,
			OnProgress: onProgress,
		},
		TopK: cfg.Index.TopK,
		Conversation: conversation.StoreConfig{
			MaxTurns:    cfg.Conversation.MaxTurns,
			SessionTTL:  cfg.Conversation.SessionTTL,
			MaxSessions: cfg.Conversation.MaxSessions,
		},
		EmotionSeed: cfg.Emotion.Seed,
		NewIndex: func(ctx context.Context) (types.Index, error) {
			if cfg.Index.Backend != config.BackendPgvector {
				return store.NewMemoryIndex(), nil
			}
			vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
				ConnString: cfg.Index.DatabaseURL,
				TableName:  cfg.Index.TableName,
				BatchSize:  cfg.Index.BatchSize,
			})
			if err != nil {
				return nil, err
			}
			return vs, nil
		},
	}
}

// newPipeline builds the pipeline without initializing it.
func newPipeline(ctx context.Context, cfg *config.Config, onProgress func(done, total int)) (*pipeline.Pipeline, error) {
	providers, err := newProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.NewWithConfig(pipelineConfig(cfg, onProgress), providers), nil
}

// initialize runs the pipeline's one-time setup. A missing credential is
// not fatal: the pipeline stays uninitialized and says so to callers.
func initialize(ctx context.Context, p *pipeline.Pipeline) error {
	err := p.Initialize(ctx)
	if err != nil && !errors.Is(err, pipeline.ErrMissingCredential) {
		return err
	}
	log.Printf("Tutor pipeline state: %s", p.State())
	return nil
}

func newSpeech(cfg *config.Config) (*speech.Transcriber, *speech.Synthesizer) {
	if !cfg.SpeechEnabled() {
		log.Printf("Speech endpoints disabled: no OpenAI API key")
		return nil, nil
	}

	transcriber, err := speech.NewTranscriber(speech.TranscriberConfig{
		APIKey:   cfg.Speech.APIKey,
		BaseURL:  cfg.Speech.BaseURL,
		Model:    cfg.Speech.TranscriptionModel,
		Language: cfg.Speech.Language,
	})
	if err != nil {
		log.Printf("Failed to initialize transcriber: %v", err)
	}
	synthesizer, err := speech.NewSynthesizer(speech.SynthesizerConfig{
		APIKey:  cfg.Speech.APIKey,
		BaseURL: cfg.Speech.BaseURL,
		Model:   cfg.Speech.SpeechModel,
		Voice:   cfg.Speech.Voice,
	})
	if err != nil {
		log.Printf("Failed to initialize synthesizer: %v", err)
	}
	return transcriber, synthesizer
}

// chunkOverlap maps a configured overlap of 0 to the processor's explicit
// no-overlap setting.
func chunkOverlap(n int) int {
	if n == 0 {
		return processor.NoOverlap
	}
	return n
}
