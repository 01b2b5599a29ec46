// Package sqlite provides an embedding store backed by SQLite using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/engram/internal/vectorstore"
	"github.com/haasonsaas/engram/pkg/models"
)

// Store implements vectorstore.Store on a SQLite database. Similarity is
// computed in-process after a filtered candidate fetch.
type Store struct {
	db *sql.DB
}

var _ vectorstore.Store = (*Store)(nil)

// Config contains configuration for the SQLite store.
type Config struct {
	Path string // Path to the database file; empty means in-memory
}

// New creates a new SQLite-backed embedding store.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			chunk_text TEXT NOT NULL,
			language TEXT,
			metadata TEXT,
			vector BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create embeddings table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_embeddings_document ON embeddings(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_embeddings_language ON embeddings(language)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// SaveEmbedding persists a single record.
func (s *Store) SaveEmbedding(ctx context.Context, rec *models.EmbeddingRecord) error {
	return s.BatchInsert(ctx, []*models.EmbeddingRecord{rec})
}

// BatchInsert persists records in one transaction.
func (s *Store) BatchInsert(ctx context.Context, recs []*models.EmbeddingRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vectorstore.InsertError(err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embeddings (id, document_id, chunk_index, chunk_text, language, metadata, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return vectorstore.InsertError(err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}

		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return vectorstore.InsertError(err)
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID,
			rec.DocumentID,
			rec.ChunkIndex,
			rec.ChunkText,
			nullString(rec.Language),
			string(metadata),
			encodeVector(rec.Vector),
			rec.CreatedAt,
		); err != nil {
			return vectorstore.InsertError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return vectorstore.InsertError(err)
	}
	return nil
}

// SimilaritySearch fetches filtered candidates and ranks them by cosine
// similarity computed in Go.
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, opts *vectorstore.SearchOptions) ([]*models.SimilarityResult, error) {
	if opts == nil {
		opts = vectorstore.DefaultSearchOptions()
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	q := `SELECT id, document_id, chunk_index, chunk_text, language, metadata, vector FROM embeddings WHERE 1=1`
	args := []any{}

	if len(opts.DocumentIDs) > 0 {
		placeholders := strings.Repeat("?,", len(opts.DocumentIDs))
		q += " AND document_id IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, id := range opts.DocumentIDs {
			args = append(args, id)
		}
	}
	if opts.Language != "" {
		q += " AND language = ?"
		args = append(args, opts.Language)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, vectorstore.SearchError(err)
	}
	defer rows.Close()

	var results []*models.SimilarityResult
	for rows.Next() {
		var (
			rec          models.SimilarityResult
			language     sql.NullString
			metadataJSON sql.NullString
			blob         []byte
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.ChunkIndex, &rec.ChunkText, &language, &metadataJSON, &blob); err != nil {
			return nil, vectorstore.SearchError(err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
				return nil, vectorstore.SearchError(err)
			}
		}

		sim := vectorstore.CosineSimilarity(query, decodeVector(blob))
		if sim < opts.Threshold {
			continue
		}
		rec.Similarity = sim
		results = append(results, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorstore.SearchError(err)
	}

	vectorstore.SortBySimilarity(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteEmbeddings removes all records for a document.
func (s *Store) DeleteEmbeddings(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE document_id = ?", documentID)
	return err
}

// Count returns the number of stored records, optionally per document.
func (s *Store) Count(ctx context.Context, documentID string) (int64, error) {
	var (
		count int64
		err   error
	)
	if documentID == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE document_id = ?", documentID).Scan(&count)
	}
	return count, err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// encodeVector converts []float32 to little-endian bytes for storage.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	data := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

// decodeVector converts stored bytes back to []float32.
func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
