package main

import (
	"github.com/spf13/cobra"
)

func buildIngestCmd() *cobra.Command {
	var (
		docID    string
		language string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file> [file...]",
		Short: "Chunk, embed, and store documents",
		Long: `Ingest reads each file, splits it into overlapping chunks, embeds
the chunks, and writes them to the configured vector store. Markdown
files are split on headings first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), args, docID, language)
		},
	}
	cmd.Flags().StringVar(&docID, "doc-id", "", "Document ID (defaults to the file name)")
	cmd.Flags().StringVar(&language, "language", "", "ISO 639-1 language code (detected when empty)")
	return cmd
}

func buildQueryCmd() *cobra.Command {
	var (
		topK         int
		minRelevance float64
		documents    []string
		language     string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve context for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], queryFlags{
				topK:         topK,
				minRelevance: minRelevance,
				documents:    documents,
				language:     language,
				asJSON:       asJSON,
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "Maximum results after dedup")
	cmd.Flags().Float64Var(&minRelevance, "min-relevance", 0, "Relevance floor for candidates")
	cmd.Flags().StringSliceVar(&documents, "document", nil, "Restrict to document IDs (repeatable)")
	cmd.Flags().StringVar(&language, "language", "", "Restrict to a language")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full result as JSON")
	return cmd
}

func buildStatsCmd() *cobra.Command {
	var document string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vector store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), document)
		},
	}
	cmd.Flags().StringVar(&document, "document", "", "Count a single document's chunks")
	return cmd
}

func buildCompactCmd() *cobra.Command {
	var (
		file   string
		model  string
		target int
	)
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Compress a conversation history offline",
		Long: `Compact reads a JSON array of messages, runs importance-based
compression toward the target token count, and writes the compacted
history to stdout. Reads stdin when --file is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd.Context(), file, model, target)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Messages JSON file (default: stdin)")
	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "Model whose tokenizer sizes the history")
	cmd.Flags().IntVar(&target, "target", 0, "Target token count (required)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
