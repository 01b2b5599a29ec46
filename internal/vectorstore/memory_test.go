package vectorstore

import (
	"context"
	"math"
	"testing"

	"github.com/haasonsaas/engram/pkg/models"
)

func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	vec := make([]float32, 512)
	for i := range vec {
		vec[i] = float32(i%7) + 0.5
	}
	rec := &models.EmbeddingRecord{
		DocumentID: "doc-1",
		ChunkIndex: 0,
		ChunkText:  "the quick brown fox",
		Vector:     vec,
	}
	if err := store.SaveEmbedding(ctx, rec); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("SaveEmbedding() should assign an ID")
	}

	results, err := store.SimilaritySearch(ctx, vec, &SearchOptions{TopK: 5, Threshold: 0.99})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 result, got %d", len(results))
	}
	if results[0].DocumentID != "doc-1" {
		t.Errorf("DocumentID = %q, want doc-1", results[0].DocumentID)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-5 {
		t.Errorf("self-similarity = %v, want ~1.0", results[0].Similarity)
	}
}

func TestMemoryStoreSearchOrderingAndTopK(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Axis-aligned vectors with decreasing alignment to the query.
	query := []float32{1, 0, 0}
	vectors := [][]float32{
		{1, 0, 0},       // sim 1.0
		{1, 1, 0},       // sim ~0.707
		{1, 2, 0},       // sim ~0.447
		{0, 1, 0},       // sim 0
		{1, 0, 0, 0, 0}, // dimension mismatch, sim 0
	}
	for i, v := range vectors {
		err := store.SaveEmbedding(ctx, &models.EmbeddingRecord{
			DocumentID: "doc",
			ChunkIndex: i,
			ChunkText:  "chunk",
			Vector:     v,
		})
		if err != nil {
			t.Fatalf("SaveEmbedding() error = %v", err)
		}
	}

	results, err := store.SimilaritySearch(ctx, query, &SearchOptions{TopK: 2, Threshold: 0.1})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected TopK=2 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted descending at %d: %v > %v", i, results[i].Similarity, results[i-1].Similarity)
		}
	}
	for _, r := range results {
		if r.Similarity < 0 || r.Similarity > 1 {
			t.Errorf("similarity %v out of [0,1]", r.Similarity)
		}
	}
}

func TestMemoryStoreDocumentFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// D2's chunk matches the query perfectly; D1's does not. The filter
	// must still return only D1.
	query := unitVector(4, 0)
	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", ChunkText: "d1 chunk", Vector: []float32{1, 1, 0, 0}},
		{DocumentID: "D2", ChunkText: "d2 chunk", Vector: unitVector(4, 0)},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	results, err := store.SimilaritySearch(ctx, query, &SearchOptions{
		TopK:        10,
		DocumentIDs: []string{"D1"},
	})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one D1 result")
	}
	for _, r := range results {
		if r.DocumentID != "D1" {
			t.Errorf("filter leaked document %q", r.DocumentID)
		}
	}
}

func TestMemoryStoreLanguageFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", Language: "en", ChunkText: "hello", Vector: unitVector(3, 0)},
		{DocumentID: "D1", Language: "de", ChunkText: "hallo", Vector: unitVector(3, 0)},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	results, err := store.SimilaritySearch(ctx, unitVector(3, 0), &SearchOptions{TopK: 10, Language: "de"})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 1 || results[0].ChunkText != "hallo" {
		t.Errorf("language filter returned %d results", len(results))
	}
}

func TestMemoryStoreEmptyCorpus(t *testing.T) {
	store := NewMemoryStore()
	results, err := store.SimilaritySearch(context.Background(), []float32{1, 0}, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch() on empty corpus error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
}

func TestMemoryStoreDeleteAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", Vector: unitVector(3, 0)},
		{DocumentID: "D1", Vector: unitVector(3, 1)},
		{DocumentID: "D2", Vector: unitVector(3, 2)},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	total, err := store.Count(ctx, "")
	if err != nil || total != 3 {
		t.Fatalf("Count(all) = %d, %v; want 3", total, err)
	}
	d1, err := store.Count(ctx, "D1")
	if err != nil || d1 != 2 {
		t.Fatalf("Count(D1) = %d, %v; want 2", d1, err)
	}

	if err := store.DeleteEmbeddings(ctx, "D1"); err != nil {
		t.Fatalf("DeleteEmbeddings() error = %v", err)
	}
	total, _ = store.Count(ctx, "")
	if total != 1 {
		t.Errorf("Count after delete = %d, want 1", total)
	}
}
