// Package main provides the CLI entry point for the engram context engine.
//
// Engram maintains conversational memory under model token budgets and
// serves semantic retrieval over an embedded document corpus.
//
// # Basic Usage
//
// Ingest a document into the vector store:
//
//	engram ingest docs/guide.md --doc-id guide
//
// Query the corpus:
//
//	engram query "how do rollbacks work"
//
// Inspect the store:
//
//	engram stats
//
// Compress a conversation history offline:
//
//	engram compact --file history.json --target 500
//
// # Environment Variables
//
//   - ENGRAM_CONFIG: Path to configuration file (default: engram.yaml)
//   - OPENAI_API_KEY: OpenAI API key for embeddings and GPT completions
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude summarization
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "engram",
		Short: "Engram - context and memory engine for conversational AI",
		Long: `Engram stores embedded document chunks, retrieves them by semantic
similarity, and keeps conversation histories within model token budgets
via importance-based compression and AI summarization.

Supported vector backends: memory, sqlite, pgvector, hnsw
Supported embedding providers: OpenAI, Ollama (with hybrid fallback)
Supported summarization providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (or set ENGRAM_CONFIG)")

	rootCmd.AddCommand(
		buildIngestCmd(),
		buildQueryCmd(),
		buildStatsCmd(),
		buildCompactCmd(),
	)

	return rootCmd
}
