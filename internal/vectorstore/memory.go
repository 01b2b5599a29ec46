package vectorstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/engram/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// local runs. Search is a brute-force scan; fine for small corpora.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.EmbeddingRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory embedding store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	return s.BatchInsert(ctx, []*models.EmbeddingRecord{rec})
}

func (s *MemoryStore) BatchInsert(ctx context.Context, recs []*models.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if rec == nil {
			continue
		}
		clone := *rec
		if clone.ID == "" {
			clone.ID = uuid.NewString()
		}
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		// Reflect generated fields back to caller.
		rec.ID = clone.ID
		rec.CreatedAt = clone.CreatedAt
		s.records = append(s.records, &clone)
	}
	return nil
}

func (s *MemoryStore) SimilaritySearch(ctx context.Context, query []float32, opts *SearchOptions) ([]*models.SimilarityResult, error) {
	opts = opts.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]*models.SimilarityResult, 0)
	for _, rec := range s.records {
		if !MatchesFilters(rec, opts) {
			continue
		}
		sim := CosineSimilarity(query, rec.Vector)
		if sim < opts.Threshold {
			continue
		}
		results = append(results, &models.SimilarityResult{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			ChunkIndex: rec.ChunkIndex,
			ChunkText:  rec.ChunkText,
			Similarity: sim,
			Metadata:   rec.Metadata,
		})
	}

	SortBySimilarity(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (s *MemoryStore) DeleteEmbeddings(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, rec := range s.records {
		if rec.DocumentID != documentID {
			kept = append(kept, rec)
		}
	}
	s.records = kept
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, documentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if documentID == "" {
		return int64(len(s.records)), nil
	}
	var n int64
	for _, rec := range s.records {
		if rec.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
