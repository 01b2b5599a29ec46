// Package vectorstore provides embedding storage interfaces and similarity
// search primitives for the retrieval pipeline.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/haasonsaas/engram/pkg/models"
)

// Sentinel errors for store failures. Callers match with errors.Is; the
// wrapped cause is preserved. The store never retries internally.
var (
	// ErrInsertFailed indicates a persistence write failed.
	ErrInsertFailed = errors.New("vectorstore: insert failed")

	// ErrSearchFailed indicates a similarity query failed.
	ErrSearchFailed = errors.New("vectorstore: search failed")
)

// Store defines the interface for embedding storage backends.
type Store interface {
	// SaveEmbedding persists a single record. No uniqueness constraint is
	// enforced; duplicate DocumentID/ChunkIndex pairs are allowed.
	SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error

	// BatchInsert persists records in one write.
	BatchInsert(ctx context.Context, recs []*models.EmbeddingRecord) error

	// SimilaritySearch returns up to opts.TopK records with cosine
	// similarity >= opts.Threshold, sorted descending, stable on ties.
	// An empty corpus yields an empty result, not an error.
	SimilaritySearch(ctx context.Context, query []float32, opts *SearchOptions) ([]*models.SimilarityResult, error)

	// DeleteEmbeddings removes all records for a document.
	DeleteEmbeddings(ctx context.Context, documentID string) error

	// Count returns the number of stored records. An empty documentID
	// counts everything.
	Count(ctx context.Context, documentID string) (int64, error)

	// Close releases resources.
	Close() error
}

// SearchOptions configures a similarity search.
type SearchOptions struct {
	// TopK is the maximum number of results. Default: 10
	TopK int

	// Threshold is the minimum cosine similarity for inclusion.
	Threshold float64

	// DocumentIDs limits the search to specific documents (empty = all).
	DocumentIDs []string

	// Language limits the search to chunks in one language (empty = all).
	Language string
}

// DefaultSearchOptions returns the default search options.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		TopK:      10,
		Threshold: 0.7,
	}
}

func (o *SearchOptions) normalize() *SearchOptions {
	if o == nil {
		return DefaultSearchOptions()
	}
	out := *o
	if out.TopK <= 0 {
		out.TopK = 10
	}
	return &out
}

// insertErr wraps a backend failure under ErrInsertFailed.
func insertErr(err error) error {
	return fmt.Errorf("%w: %v", ErrInsertFailed, err)
}

// searchErr wraps a backend failure under ErrSearchFailed.
func searchErr(err error) error {
	return fmt.Errorf("%w: %v", ErrSearchFailed, err)
}

// InsertError wraps err under ErrInsertFailed for use by backend packages.
func InsertError(err error) error { return insertErr(err) }

// SearchError wraps err under ErrSearchFailed for use by backend packages.
func SearchError(err error) error { return searchErr(err) }

// SortBySimilarity orders results by similarity descending. The sort is
// stable so equal similarities keep their fetch order.
func SortBySimilarity(results []*models.SimilarityResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

// MatchesFilters reports whether a record passes the option filters.
func MatchesFilters(rec *models.EmbeddingRecord, opts *SearchOptions) bool {
	if opts.Language != "" && rec.Language != opts.Language {
		return false
	}
	if len(opts.DocumentIDs) > 0 {
		found := false
		for _, id := range opts.DocumentIDs {
			if rec.DocumentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
