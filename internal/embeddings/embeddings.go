// Package embeddings provides interfaces and implementations for embedding
// providers consumed by the retrieval pipeline.
package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors surfaced by providers. Retries are the caller's
// responsibility.
var (
	// ErrGenerationFailed indicates the provider could not produce a vector.
	ErrGenerationFailed = errors.New("embeddings: generation failed")

	// ErrUnsupportedLanguage indicates the provider rejected the input language.
	ErrUnsupportedLanguage = errors.New("embeddings: unsupported language")

	// ErrAPI indicates a transport or remote API failure.
	ErrAPI = errors.New("embeddings: api error")
)

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed generates an embedding for a single text. An optional language
	// hint lets multilingual models pick the right tokenizer path.
	Embed(ctx context.Context, text string, languageHint string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts (more efficient).
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// DetectLanguage returns an ISO 639-1 code for the text, or "" when
	// the language cannot be determined.
	DetectLanguage(ctx context.Context, text string) (string, error)

	// Name returns the provider name.
	Name() string

	// Dimension returns the embedding dimension.
	Dimension() int

	// MaxBatchSize returns the maximum number of texts per batch.
	MaxBatchSize() int
}

// Config contains common configuration for embedding providers.
type Config struct {
	Provider string `yaml:"provider"` // openai, ollama, hybrid
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`

	// Ollama-specific
	OllamaURL string `yaml:"ollama_url"`
}
