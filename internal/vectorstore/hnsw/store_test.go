package hnsw

import (
	"context"
	"math"
	"testing"

	"github.com/haasonsaas/engram/internal/vectorstore"
	"github.com/haasonsaas/engram/pkg/models"
)

func TestSelfSearch(t *testing.T) {
	ctx := context.Background()
	store := New(4)

	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", ChunkIndex: 0, ChunkText: "a", Vector: []float32{1, 0, 0, 0}},
		{DocumentID: "D1", ChunkIndex: 1, ChunkText: "b", Vector: []float32{0, 1, 0, 0}},
		{DocumentID: "D2", ChunkIndex: 0, ChunkText: "c", Vector: []float32{0, 0, 1, 0}},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, &vectorstore.SearchOptions{TopK: 1, Threshold: 0.9})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ChunkText != "a" {
		t.Errorf("ChunkText = %q, want a", results[0].ChunkText)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-5 {
		t.Errorf("similarity = %v, want ~1.0", results[0].Similarity)
	}
}

func TestDimensionMismatchedQueryReturnsNothing(t *testing.T) {
	ctx := context.Background()
	store := New(4)

	if err := store.SaveEmbedding(ctx, &models.EmbeddingRecord{DocumentID: "D", Vector: []float32{1, 0, 0, 0}}); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	results, err := store.SimilaritySearch(ctx, []float32{1, 0}, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for mismatched query dimension, got %d", len(results))
	}
}

func TestDeleteRebuildsGraph(t *testing.T) {
	ctx := context.Background()
	store := New(3)

	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", ChunkText: "a", Vector: []float32{1, 0, 0}},
		{DocumentID: "D2", ChunkText: "b", Vector: []float32{0, 1, 0}},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	if err := store.DeleteEmbeddings(ctx, "D1"); err != nil {
		t.Fatalf("DeleteEmbeddings() error = %v", err)
	}

	count, _ := store.Count(ctx, "")
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}

	results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{TopK: 5})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	for _, r := range results {
		if r.DocumentID == "D1" {
			t.Error("deleted document still searchable")
		}
	}
}
