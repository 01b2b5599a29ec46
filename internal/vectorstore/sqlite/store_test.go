package sqlite

import (
	"context"
	"math"
	"testing"

	"github.com/haasonsaas/engram/internal/vectorstore"
	"github.com/haasonsaas/engram/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestVectorEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{"nil", nil},
		{"single", []float32{1.5}},
		{"negative and fractional", []float32{-0.25, 3.75, 0, 1e-6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := decodeVector(encodeVector(tt.vec))
			if len(decoded) != len(tt.vec) {
				t.Fatalf("length = %d, want %d", len(decoded), len(tt.vec))
			}
			for i := range tt.vec {
				if decoded[i] != tt.vec[i] {
					t.Errorf("decoded[%d] = %v, want %v", i, decoded[i], tt.vec[i])
				}
			}
		})
	}
}

func TestSelfSearchReturnsExactMatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	vec := make([]float32, 512)
	for i := range vec {
		vec[i] = float32(i)/512 + 0.1
	}
	rec := &models.EmbeddingRecord{
		DocumentID: "D",
		ChunkIndex: 0,
		ChunkText:  "chunk text",
		Language:   "en",
		Metadata:   map[string]any{"source": "test"},
		Vector:     vec,
	}
	if err := store.SaveEmbedding(ctx, rec); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	results, err := store.SimilaritySearch(ctx, vec, &vectorstore.SearchOptions{TopK: 5, Threshold: 0.99})
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].DocumentID != "D" {
		t.Errorf("DocumentID = %q, want D", results[0].DocumentID)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-5 {
		t.Errorf("similarity = %v, want ~1.0", results[0].Similarity)
	}
	if results[0].Metadata["source"] != "test" {
		t.Errorf("metadata not round-tripped: %v", results[0].Metadata)
	}
}

func TestSearchFiltersAndThreshold(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", ChunkIndex: 0, ChunkText: "a", Language: "en", Vector: []float32{1, 1, 0}},
		{DocumentID: "D2", ChunkIndex: 0, ChunkText: "b", Language: "en", Vector: []float32{1, 0, 0}},
		{DocumentID: "D2", ChunkIndex: 1, ChunkText: "c", Language: "de", Vector: []float32{1, 0, 0}},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	t.Run("document filter excludes better matches", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{
			TopK:        10,
			DocumentIDs: []string{"D1"},
		})
		if err != nil {
			t.Fatalf("SimilaritySearch() error = %v", err)
		}
		for _, r := range results {
			if r.DocumentID != "D1" {
				t.Errorf("filter leaked document %q", r.DocumentID)
			}
		}
		if len(results) != 1 {
			t.Errorf("expected 1 D1 result, got %d", len(results))
		}
	})

	t.Run("language filter", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{
			TopK:     10,
			Language: "de",
		})
		if err != nil {
			t.Fatalf("SimilaritySearch() error = %v", err)
		}
		if len(results) != 1 || results[0].ChunkText != "c" {
			t.Errorf("language filter returned %d results", len(results))
		}
	})

	t.Run("threshold drops weak matches", func(t *testing.T) {
		results, err := store.SimilaritySearch(ctx, []float32{1, 0, 0}, &vectorstore.SearchOptions{
			TopK:      10,
			Threshold: 0.9,
		})
		if err != nil {
			t.Fatalf("SimilaritySearch() error = %v", err)
		}
		// Only the two exact-direction vectors pass 0.9.
		if len(results) != 2 {
			t.Errorf("expected 2 results above threshold, got %d", len(results))
		}
	})
}

func TestDeleteCascadesByDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	recs := []*models.EmbeddingRecord{
		{DocumentID: "D1", ChunkIndex: 0, ChunkText: "a", Vector: []float32{1, 0}},
		{DocumentID: "D1", ChunkIndex: 1, ChunkText: "b", Vector: []float32{0, 1}},
		{DocumentID: "D2", ChunkIndex: 0, ChunkText: "c", Vector: []float32{1, 1}},
	}
	if err := store.BatchInsert(ctx, recs); err != nil {
		t.Fatalf("BatchInsert() error = %v", err)
	}

	if err := store.DeleteEmbeddings(ctx, "D1"); err != nil {
		t.Fatalf("DeleteEmbeddings() error = %v", err)
	}

	total, err := store.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if total != 1 {
		t.Errorf("Count after delete = %d, want 1", total)
	}
	d1, _ := store.Count(ctx, "D1")
	if d1 != 0 {
		t.Errorf("Count(D1) after delete = %d, want 0", d1)
	}
}

func TestDuplicateChunksAllowed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for range 3 {
		err := store.SaveEmbedding(ctx, &models.EmbeddingRecord{
			DocumentID: "D",
			ChunkIndex: 0,
			ChunkText:  "same chunk",
			Vector:     []float32{1, 0},
		})
		if err != nil {
			t.Fatalf("SaveEmbedding() error = %v", err)
		}
	}

	count, err := store.Count(ctx, "D")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3 (no write-time dedup)", count)
	}
}
