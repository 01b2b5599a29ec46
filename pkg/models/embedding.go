package models

import (
	"time"
)

// EmbeddingRecord is a stored chunk of source-document text with its vector.
//
// Multiple records may share a DocumentID/ChunkIndex pair; the store does
// not enforce uniqueness at write time. Records are cascade-deleted with
// their source document.
type EmbeddingRecord struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	ChunkText  string         `json:"chunk_text"`
	Language   string         `json:"language,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	Vector    []float32 `json:"-"` // Not serialized to JSON
	CreatedAt time.Time `json:"created_at"`
}

// SimilarityResult is a single vector-search hit.
type SimilarityResult struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	ChunkIndex int            `json:"chunk_index"`
	ChunkText  string         `json:"chunk_text"`
	Similarity float64        `json:"similarity"` // Cosine similarity (0-1)
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ScoredResult is a similarity hit after relevance scoring and ranking.
type ScoredResult struct {
	SimilarityResult

	RelevanceScore float64 `json:"relevance_score"` // Combined relevance (0-1)
	Rank           int     `json:"rank"`            // Position after ranking, 0-based
	Filtered       bool    `json:"filtered"`        // Dropped below the relevance floor
}

// RAGContext is the assembled retrieval context handed to the prompt builder.
type RAGContext struct {
	ContextText      string   `json:"context_text"`
	SourceDocuments  []string `json:"source_documents"`
	TotalChunks      int      `json:"total_chunks"`
	AverageRelevance float64  `json:"average_relevance"`
	Language         string   `json:"language,omitempty"`
	ContextLength    int      `json:"context_length"`
}
