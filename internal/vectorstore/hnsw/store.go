// Package hnsw provides an in-memory embedding store with approximate
// nearest-neighbor search over a coder/hnsw graph. Suited to larger local
// corpora where the brute-force memory store gets slow.
package hnsw

import (
	"context"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/haasonsaas/engram/internal/vectorstore"
	"github.com/haasonsaas/engram/pkg/models"
)

// oversample widens the graph search so post-filters (document, language,
// threshold) still leave enough candidates for TopK.
const oversample = 4

// Store implements vectorstore.Store over an HNSW graph keyed by record ID.
type Store struct {
	mu        sync.Mutex
	graph     *hnsw.Graph[string]
	records   map[string]*models.EmbeddingRecord
	dimension int
}

var _ vectorstore.Store = (*Store)(nil)

// New creates a new HNSW-backed embedding store for vectors of the given
// dimension. Records with a different dimension are stored but never
// returned by search (similarity 0).
func New(dimension int) *Store {
	return &Store{
		graph:     hnsw.NewGraph[string](),
		records:   make(map[string]*models.EmbeddingRecord),
		dimension: dimension,
	}
}

func (s *Store) SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	return s.BatchInsert(ctx, []*models.EmbeddingRecord{rec})
}

func (s *Store) BatchInsert(ctx context.Context, recs []*models.EmbeddingRecord) error {
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
		rec.ID = clone.ID
		rec.CreatedAt = clone.CreatedAt

		s.records[clone.ID] = &clone
		if len(clone.Vector) == s.dimension {
			s.graph.Add(hnsw.MakeNode(clone.ID, clone.Vector))
		}
	}
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, query []float32, opts *vectorstore.SearchOptions) ([]*models.SimilarityResult, error) {
	if opts == nil {
		opts = vectorstore.DefaultSearchOptions()
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 || len(query) != s.dimension {
		return []*models.SimilarityResult{}, nil
	}

	neighbors := s.graph.Search(query, topK*oversample)

	results := make([]*models.SimilarityResult, 0, len(neighbors))
	for _, node := range neighbors {
		rec, ok := s.records[node.Key]
		if !ok || !vectorstore.MatchesFilters(rec, opts) {
			continue
		}
		// Exact cosine over the candidate set; the graph distance is only
		// used for the approximate neighborhood.
		sim := vectorstore.CosineSimilarity(query, rec.Vector)
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

	vectorstore.SortBySimilarity(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteEmbeddings removes a document's records and rebuilds the graph.
// Rebuild keeps the graph consistent without depending on in-place node
// removal; document deletion is rare relative to search.
func (s *Store) DeleteEmbeddings(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for id, rec := range s.records {
		if rec.DocumentID == documentID {
			delete(s.records, id)
			removed = true
		}
	}
	if !removed {
		return nil
	}

	graph := hnsw.NewGraph[string]()
	for id, rec := range s.records {
		if len(rec.Vector) == s.dimension {
			graph.Add(hnsw.MakeNode(id, rec.Vector))
		}
	}
	s.graph = graph
	return nil
}

func (s *Store) Count(ctx context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

func (s *Store) Close() error {
	return nil
}
