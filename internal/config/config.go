// Package config loads the engine's YAML configuration with environment
// variable expansion and field-by-field defaulting.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/engram/internal/chunker"
	"github.com/haasonsaas/engram/internal/embeddings"
)

// Config is the main configuration structure for engram.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Embeddings  embeddings.Config `yaml:"embeddings"`
	Completion  CompletionConfig  `yaml:"completion"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Memory      MemoryConfig      `yaml:"memory"`
	Compression CompressionConfig `yaml:"compression"`
	Chunker     chunker.Config    `yaml:"chunker"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// StorageConfig selects and configures the vector store backend.
type StorageConfig struct {
	// Backend is one of: memory, sqlite, pgvector, hnsw
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresURL is the connection string for the pgvector backend.
	PostgresURL string `yaml:"postgres_url"`
}

// CompletionConfig configures the summarization completion provider.
type CompletionConfig struct {
	// Provider is one of: anthropic, openai
	Provider string `yaml:"provider"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	MaxRetries int `yaml:"max_retries"`
}

// RetrievalConfig tunes the retrieval pipeline defaults.
type RetrievalConfig struct {
	TopK                   int     `yaml:"top_k"`
	MinRelevanceScore      float64 `yaml:"min_relevance_score"`
	DeduplicationThreshold float64 `yaml:"deduplication_threshold"`
	MaxContextLength       int     `yaml:"max_context_length"`
	EmbeddingCacheSize     int     `yaml:"embedding_cache_size"`
}

// MemoryConfig tunes conversation memory.
type MemoryConfig struct {
	// Model names the default model whose context window bounds memory.
	Model string `yaml:"model"`

	// MaxTokens overrides the model's context window when positive.
	MaxTokens int `yaml:"max_tokens"`

	// IdleTTL evicts cached conversations after this idle period.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// CompressionConfig tunes history compression.
type CompressionConfig struct {
	// TokenThreshold triggers AI summarization above this history size.
	TokenThreshold int `yaml:"token_threshold"`

	// KeepRecent messages are never summarized.
	KeepRecent int `yaml:"keep_recent"`

	// BaseThreshold is the importance engine's starting accept threshold.
	BaseThreshold float64 `yaml:"base_threshold"`

	// SummaryModel is passed to the completion provider for summaries.
	SummaryModel string `yaml:"summary_model"`

	// MaxSummaryTokens bounds generated summaries.
	MaxSummaryTokens int `yaml:"max_summary_tokens"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// Load reads and parses the configuration file. Environment variables in
// the file are expanded before parsing; missing fields get defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "hnsw":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: sqlite backend requires storage.sqlite_path")
		}
	case "pgvector":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("config: pgvector backend requires storage.postgres_url")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Embeddings.Provider {
	case "openai", "ollama", "hybrid":
	default:
		return fmt.Errorf("config: unknown embeddings provider %q", c.Embeddings.Provider)
	}

	switch c.Completion.Provider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown completion provider %q", c.Completion.Provider)
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "ollama"
	}
	if cfg.Embeddings.OllamaURL == "" {
		cfg.Embeddings.OllamaURL = "http://localhost:11434"
	}
	if cfg.Completion.MaxRetries == 0 {
		cfg.Completion.MaxRetries = 3
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinRelevanceScore == 0 {
		cfg.Retrieval.MinRelevanceScore = 0.3
	}
	if cfg.Retrieval.DeduplicationThreshold == 0 {
		cfg.Retrieval.DeduplicationThreshold = 0.95
	}
	if cfg.Retrieval.MaxContextLength == 0 {
		cfg.Retrieval.MaxContextLength = 4000
	}
	if cfg.Retrieval.EmbeddingCacheSize == 0 {
		cfg.Retrieval.EmbeddingCacheSize = 256
	}
	if cfg.Memory.Model == "" {
		cfg.Memory.Model = "gpt-4o-mini"
	}
	if cfg.Memory.IdleTTL == 0 {
		cfg.Memory.IdleTTL = 5 * time.Minute
	}
	if cfg.Compression.TokenThreshold == 0 {
		cfg.Compression.TokenThreshold = 4000
	}
	if cfg.Compression.KeepRecent == 0 {
		cfg.Compression.KeepRecent = 6
	}
	if cfg.Compression.BaseThreshold == 0 {
		cfg.Compression.BaseThreshold = 0.5
	}
	if cfg.Compression.MaxSummaryTokens == 0 {
		cfg.Compression.MaxSummaryTokens = 512
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker = chunker.DefaultConfig()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}
