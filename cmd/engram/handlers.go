package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/engram/internal/chunker"
	"github.com/haasonsaas/engram/internal/compress"
	"github.com/haasonsaas/engram/internal/config"
	"github.com/haasonsaas/engram/internal/embeddings"
	ollamaembed "github.com/haasonsaas/engram/internal/embeddings/ollama"
	openaiembed "github.com/haasonsaas/engram/internal/embeddings/openai"
	"github.com/haasonsaas/engram/internal/observability"
	"github.com/haasonsaas/engram/internal/retrieval"
	"github.com/haasonsaas/engram/internal/tokens"
	"github.com/haasonsaas/engram/internal/vectorstore"
	hnswstore "github.com/haasonsaas/engram/internal/vectorstore/hnsw"
	pgvectorstore "github.com/haasonsaas/engram/internal/vectorstore/pgvector"
	sqlitestore "github.com/haasonsaas/engram/internal/vectorstore/sqlite"
	"github.com/haasonsaas/engram/pkg/models"
)

type queryFlags struct {
	topK         int
	minRelevance float64
	documents    []string
	language     string
	asJSON       bool
}

// loadConfig resolves the configuration from --config, ENGRAM_CONFIG, or
// an engram.yaml in the working directory, falling back to defaults.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("ENGRAM_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("engram.yaml"); err == nil {
			path = "engram.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildLogger(cfg *config.Config) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
}

// buildEmbedder constructs the configured embedding provider. The hybrid
// provider tries the local Ollama server first and falls back to OpenAI.
func buildEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.Embeddings.Provider {
	case "openai":
		return openaiembed.New(openaiembed.Config{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
	case "ollama":
		return ollamaembed.New(ollamaembed.Config{
			BaseURL: cfg.Embeddings.OllamaURL,
			Model:   cfg.Embeddings.Model,
		})
	case "hybrid":
		local, err := ollamaembed.New(ollamaembed.Config{
			BaseURL: cfg.Embeddings.OllamaURL,
		})
		if err != nil {
			return nil, err
		}
		remote, err := openaiembed.New(openaiembed.Config{
			APIKey:  cfg.Embeddings.APIKey,
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
		})
		if err != nil {
			return nil, err
		}
		return embeddings.NewFallback(local, remote)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}
}

// buildStore constructs the configured vector store backend.
func buildStore(cfg *config.Config, dimension int) (vectorstore.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return vectorstore.NewMemoryStore(), nil
	case "sqlite":
		return sqlitestore.New(sqlitestore.Config{Path: cfg.Storage.SQLitePath})
	case "pgvector":
		return pgvectorstore.New(pgvectorstore.Config{
			DSN:           cfg.Storage.PostgresURL,
			Dimension:     dimension,
			RunMigrations: true,
		})
	case "hnsw":
		return hnswstore.New(dimension), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func runIngest(ctx context.Context, files []string, docID, language string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg, embedder.Dimension())
	if err != nil {
		return err
	}
	defer store.Close()

	counter := tokens.ForModel(cfg.Memory.Model)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		id := docID
		if id == "" || len(files) > 1 {
			id = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		}

		var splitter *chunker.RecursiveSplitter
		if strings.EqualFold(filepath.Ext(file), ".md") {
			splitter = chunker.NewMarkdownSplitter(cfg.Chunker)
		} else {
			splitter = chunker.NewRecursiveSplitter(cfg.Chunker)
		}

		chunks := splitter.Split(string(data))
		if len(chunks) == 0 {
			logger.Warn(ctx, "document produced no chunks", "file", file)
			continue
		}

		lang := language
		if lang == "" {
			lang, _ = embedder.DetectLanguage(ctx, chunks[0].Content)
		}

		recs := chunker.Records(id, lang, chunks, counter)
		if err := embedRecords(ctx, embedder, recs); err != nil {
			return fmt.Errorf("embed %s: %w", file, err)
		}
		if err := store.BatchInsert(ctx, recs); err != nil {
			return fmt.Errorf("store %s: %w", file, err)
		}

		logger.Info(ctx, "document ingested",
			"document_id", id,
			"chunks", len(recs),
			"language", lang)
		fmt.Printf("%s: %d chunks\n", id, len(recs))
	}
	return nil
}

// embedRecords fills record vectors in provider-sized batches.
func embedRecords(ctx context.Context, embedder embeddings.Provider, recs []*models.EmbeddingRecord) error {
	batchSize := embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(recs)
	}

	for start := 0; start < len(recs); start += batchSize {
		end := start + batchSize
		if end > len(recs) {
			end = len(recs)
		}
		texts := make([]string, 0, end-start)
		for _, rec := range recs[start:end] {
			texts = append(texts, rec.ChunkText)
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, vec := range vectors {
			recs[start+i].Vector = vec
		}
	}
	return nil
}

func runQuery(ctx context.Context, query string, flags queryFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg, embedder.Dimension())
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := retrieval.NewPipeline(store, embedder, retrieval.Config{
		EmbeddingCacheSize: cfg.Retrieval.EmbeddingCacheSize,
		Logger:             logger.Slog(),
	})

	opts := &retrieval.Options{
		TopK:                   cfg.Retrieval.TopK,
		MinRelevanceScore:      cfg.Retrieval.MinRelevanceScore,
		DeduplicationThreshold: cfg.Retrieval.DeduplicationThreshold,
		MaxContextLength:       cfg.Retrieval.MaxContextLength,
		DocumentIDs:            flags.documents,
		Language:               flags.language,
	}
	if flags.topK > 0 {
		opts.TopK = flags.topK
	}
	if flags.minRelevance > 0 {
		opts.MinRelevanceScore = flags.minRelevance
	}

	result, err := pipeline.Retrieve(ctx, query, opts)
	if err != nil {
		return err
	}

	if flags.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Context.ContextText)
	fmt.Printf("\n-- %d chunks from %s (avg relevance %.2f, %s)\n",
		result.Context.TotalChunks,
		strings.Join(result.Context.SourceDocuments, ", "),
		result.Context.AverageRelevance,
		result.ProcessingTime.Round(time.Millisecond))
	return nil
}

func runStats(ctx context.Context, document string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	store, err := buildStore(cfg, embedder.Dimension())
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.Count(ctx, document)
	if err != nil {
		return err
	}
	if document != "" {
		fmt.Printf("document %s: %d chunks\n", document, count)
	} else {
		fmt.Printf("store: %d chunks (%s backend)\n", count, cfg.Storage.Backend)
	}
	return nil
}

func runCompact(ctx context.Context, file, model string, target int) error {
	var reader io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		reader = f
	}

	var msgs []*models.Message
	if err := json.NewDecoder(reader).Decode(&msgs); err != nil {
		return fmt.Errorf("parse messages: %w", err)
	}

	counter := tokens.ForModel(model)
	engine := compress.NewEngine(compress.DefaultEngineConfig(), counter)
	result := engine.Compress(msgs, target)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Messages); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "compacted %d -> %d messages, %d -> %d tokens (ratio %.2f, retention %.2f)\n",
		result.OriginalCount, result.CompressedCount,
		result.OriginalTokens, result.CompressedTokens,
		result.CompressionRatio, result.ImportanceRetention)
	return nil
}
