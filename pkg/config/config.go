package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"

	BackendMemory   = "memory"
	BackendPgvector = "pgvector"
)

type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	} `yaml:"server"`

	LLM struct {
		Provider       string        `yaml:"provider"`
		APIKey         string        `yaml:"api_key"`
		BaseURL        string        `yaml:"base_url"`
		Model          string        `yaml:"model"`
		EmbeddingModel string        `yaml:"embedding_model"`
		MaxTokens      int           `yaml:"max_tokens"`
		Temperature    float64       `yaml:"temperature"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxRetries     int           `yaml:"max_retries"`
		RateLimit      float64       `yaml:"rate_limit"`
	} `yaml:"llm"`

	Documents struct {
		Path       string   `yaml:"path"`
		Extensions []string `yaml:"extensions"`
		URLs       []string `yaml:"urls"`
		MaxDepth   int      `yaml:"max_depth"`
		RateLimit  float64  `yaml:"rate_limit"`
	} `yaml:"documents"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Index struct {
		Backend     string `yaml:"backend"`
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
		BatchSize   int    `yaml:"batch_size"`
		TopK        int    `yaml:"top_k"`
	} `yaml:"index"`

	Conversation struct {
		MaxTurns    int           `yaml:"max_turns"`
		SessionTTL  time.Duration `yaml:"session_ttl"`
		MaxSessions int           `yaml:"max_sessions"`
	} `yaml:"conversation"`

	Emotion struct {
		Seed int64 `yaml:"seed"`
	} `yaml:"emotion"`

	Speech struct {
		APIKey             string `yaml:"api_key"`
		BaseURL            string `yaml:"base_url"`
		TranscriptionModel string `yaml:"transcription_model"`
		Language           string `yaml:"language"`
		SpeechModel        string `yaml:"speech_model"`
		Voice              string `yaml:"voice"`
	} `yaml:"speech"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/tutor/config.yaml"),
			"/etc/tutor/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Environment wins over the file, defaults fill whatever is left
	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// newConfig presets the fields where zero is a meaningful setting. The file
// is decoded over it, so only keys absent from the file keep these values.
func newConfig() *Config {
	config := &Config{}
	config.LLM.MaxRetries = 2
	config.Processor.ChunkOverlap = 200
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// HasCredential reports whether the configured provider has what it needs to
// be called. Ollama runs locally and needs no key.
func (c *Config) HasCredential() bool {
	switch c.LLM.Provider {
	case ProviderOllama:
		return c.LLM.BaseURL != ""
	default:
		return c.LLM.APIKey != ""
	}
}

// SpeechEnabled reports whether the speech endpoints can reach a provider.
func (c *Config) SpeechEnabled() bool {
	return c.Speech.APIKey != ""
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"*"}
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 120 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}
	if config.Server.MaxUploadBytes == 0 {
		config.Server.MaxUploadBytes = 25 << 20
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = ProviderGoogleAI
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case ProviderOpenAI:
			config.LLM.Model = "gpt-4o-mini"
		case ProviderOllama:
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gemini-2.0-flash"
		}
	}
	if config.LLM.EmbeddingModel == "" {
		switch config.LLM.Provider {
		case ProviderOpenAI:
			config.LLM.EmbeddingModel = "text-embedding-3-small"
		case ProviderOllama:
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		default:
			config.LLM.EmbeddingModel = "embedding-001"
		}
	}
	if config.LLM.Provider == ProviderOllama && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Documents.Path == "" {
		config.Documents.Path = "./documents"
	}
	if len(config.Documents.Extensions) == 0 {
		config.Documents.Extensions = []string{".pdf", ".txt", ".md", ".html", ".htm"}
	}
	if config.Documents.MaxDepth == 0 {
		config.Documents.MaxDepth = 2
	}
	if config.Documents.RateLimit == 0 {
		config.Documents.RateLimit = 2.0
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}

	if config.Index.Backend == "" {
		config.Index.Backend = BackendMemory
	}
	if config.Index.TableName == "" {
		config.Index.TableName = "chunks"
	}
	if config.Index.BatchSize == 0 {
		config.Index.BatchSize = 100
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 3
	}

	if config.Conversation.MaxTurns == 0 {
		config.Conversation.MaxTurns = 10
	}
	if config.Conversation.SessionTTL == 0 {
		config.Conversation.SessionTTL = 30 * time.Minute
	}
	if config.Conversation.MaxSessions == 0 {
		config.Conversation.MaxSessions = 1000
	}

	if config.Speech.TranscriptionModel == "" {
		config.Speech.TranscriptionModel = "whisper-1"
	}
	if config.Speech.Language == "" {
		config.Speech.Language = "en"
	}
	if config.Speech.SpeechModel == "" {
		config.Speech.SpeechModel = "tts-1"
	}
	if config.Speech.Voice == "" {
		config.Speech.Voice = "nova"
	}
}

func mergeWithEnv(config *Config) {
	if provider := os.Getenv("TUTOR_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if config.LLM.APIKey == "" {
		switch config.LLM.Provider {
		case ProviderOpenAI:
			config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderOllama:
		default:
			config.LLM.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.DatabaseURL = dbURL
	}
	if docs := os.Getenv("DOCUMENTS_PATH"); docs != "" {
		config.Documents.Path = docs
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if config.Speech.APIKey == "" {
		config.Speech.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}
