package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pdf-rag/internal/models"
)

var ErrInvalidConfig = errors.New("invalid config")

// EmbeddingProvider enumerates the supported embedding backends.
type EmbeddingProvider string

const (
	EmbeddingOllama EmbeddingProvider = "ollama"
	EmbeddingOpenAI EmbeddingProvider = "openai"
)

// GenerationProvider enumerates the supported text generation backends.
type GenerationProvider string

const (
	GenerationOllama GenerationProvider = "ollama"
	GenerationOpenAI GenerationProvider = "openai"
)

const (
	DefaultOllamaBaseURL       = "http://localhost:11434"
	DefaultOllamaEmbedModel    = "nomic-embed-text"
	DefaultOllamaDimension     = 768
	DefaultOpenAIEmbedModel    = "text-embedding-3-small"
	DefaultOpenAIDimension     = 1536
	DefaultEmbedBatchSize      = 1000
	DefaultGenerateURL         = "http://localhost:11434/api/generate"
	DefaultOllamaGenerateModel = "llama3.2"
	DefaultOpenAIGenerateModel = "gpt-4o-mini"
	DefaultStorePath           = "db_semantic/"
	DefaultServerAddr          = ":8000"
	DefaultLogLevel            = "info"
)

type Config struct {
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Log        LogConfig        `yaml:"log"`
}

type EmbeddingConfig struct {
	Provider  EmbeddingProvider `yaml:"provider"`
	Model     string            `yaml:"model"`
	BaseURL   string            `yaml:"base_url"`
	APIKey    string            `yaml:"api_key"`
	Dimension int               `yaml:"dimension"`
	BatchSize int               `yaml:"batch_size"`
}

type GenerationConfig struct {
	Provider GenerationProvider `yaml:"provider"`
	Model    string             `yaml:"model"`
	// GenerateURL is the full Ollama generate endpoint.
	GenerateURL string        `yaml:"generate_url"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoreConfig locates the vector store. Path is a local directory or a URL
// whose scheme selects the backend.
type StoreConfig struct {
	Path          string `yaml:"path"`
	Table         string `yaml:"table"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	Debug         bool   `yaml:"debug"`
	QdrantAPIKey  string `yaml:"qdrant_api_key"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type IngestConfig struct {
	// nil selects the default; 0 keeps every non-empty page.
	MinChunkLength *int `yaml:"min_chunk_length"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Generation.Model, "LLM_MODEL")
	setFromEnv(&c.Generation.GenerateURL, "LLM_GENERATE_URL")
	setFromEnv(&c.Store.Path, "SEMANTIC_DB_PATH")
	setFromEnv(&c.Embedding.BaseURL, "OLLAMA_BASE_URL")
	setFromEnv(&c.Server.Addr, "SERVER_ADDR")
	setFromEnv(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = EmbeddingProvider(strings.ToLower(v))
	}
	if v := os.Getenv("GENERATION_PROVIDER"); v != "" {
		c.Generation.Provider = GenerationProvider(strings.ToLower(v))
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
		if c.Generation.APIKey == "" {
			c.Generation.APIKey = v
		}
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// ApplyDefaults fills every unset field. Provider specific defaults depend on
// the selected provider.
func (c *Config) ApplyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = EmbeddingOllama
	}
	switch c.Embedding.Provider {
	case EmbeddingOllama:
		if c.Embedding.Model == "" {
			c.Embedding.Model = DefaultOllamaEmbedModel
		}
		if c.Embedding.Dimension == 0 {
			c.Embedding.Dimension = DefaultOllamaDimension
		}
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = DefaultOllamaBaseURL
		}
	case EmbeddingOpenAI:
		if c.Embedding.Model == "" {
			c.Embedding.Model = DefaultOpenAIEmbedModel
		}
		if c.Embedding.Dimension == 0 {
			c.Embedding.Dimension = DefaultOpenAIDimension
		}
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = DefaultEmbedBatchSize
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = GenerationOllama
	}
	switch c.Generation.Provider {
	case GenerationOllama:
		if c.Generation.Model == "" {
			c.Generation.Model = DefaultOllamaGenerateModel
		}
		if c.Generation.GenerateURL == "" {
			c.Generation.GenerateURL = DefaultGenerateURL
		}
	case GenerationOpenAI:
		if c.Generation.Model == "" {
			c.Generation.Model = DefaultOpenAIGenerateModel
		}
	}

	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Store.Table == "" {
		c.Store.Table = models.DefaultTable
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Ingest.MinChunkLength == nil || *c.Ingest.MinChunkLength < 0 {
		n := models.DefaultMinChunkLength
		c.Ingest.MinChunkLength = &n
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case EmbeddingOllama:
	case EmbeddingOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%w: embedding provider openai requires an api key", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidConfig)
	}

	switch c.Generation.Provider {
	case GenerationOllama:
	case GenerationOpenAI:
		if c.Generation.APIKey == "" {
			return fmt.Errorf("%w: generation provider openai requires an api key", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown generation provider %q", ErrInvalidConfig, c.Generation.Provider)
	}
	if c.Generation.Timeout < 0 {
		return fmt.Errorf("%w: generation timeout must not be negative", ErrInvalidConfig)
	}

	if n := len(c.Store.EncryptionKey); n != 0 && n != 32 {
		return fmt.Errorf("%w: store encryption key must be 32 bytes, got %d", ErrInvalidConfig, n)
	}
	return nil
}
