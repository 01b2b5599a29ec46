// Package pgvector provides an embedding store backed by PostgreSQL with
// the pgvector extension. Similarity ordering happens SQL-side via the
// cosine distance operator.
package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq" // PostgreSQL driver

	"github.com/haasonsaas/engram/internal/vectorstore"
	"github.com/haasonsaas/engram/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements vectorstore.Store using pgvector.
type Store struct {
	conn      *sql.DB
	dimension int
	ownsDB    bool
}

var _ vectorstore.Store = (*Store)(nil)

// Config contains configuration for the pgvector store.
type Config struct {
	// DSN is the PostgreSQL connection string. If empty, DB must be set.
	DSN string

	// DB is an existing connection to reuse; the store will not close it.
	DB *sql.DB

	// Dimension is the embedding dimension (e.g. 1536).
	Dimension int

	// RunMigrations controls whether to apply migrations on startup.
	RunMigrations bool
}

// New creates a new pgvector-backed embedding store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	var (
		conn   *sql.DB
		ownsDB bool
		err    error
	)
	switch {
	case cfg.DB != nil:
		conn = cfg.DB
	case cfg.DSN != "":
		conn, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		ownsDB = true

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	default:
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	s := &Store{conn: conn, dimension: cfg.Dimension, ownsDB: ownsDB}
	if cfg.RunMigrations {
		if err := s.runMigrations(context.Background()); err != nil {
			if ownsDB {
				conn.Close()
			}
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return s, nil
}

type migration struct {
	ID    string
	UpSQL string
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migration{
			ID:    strings.TrimSuffix(entry.Name(), ".sql"),
			UpSQL: string(data),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return migrations, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS embedding_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}

		up := m.UpSQL
		// The vector column dimension is configured, not hard-coded.
		up = strings.ReplaceAll(up, "{{dimension}}", strconv.Itoa(s.dimension))

		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				_ = rbErr
			}
			return fmt.Errorf("apply migration %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO embedding_schema_migrations (id) VALUES ($1)`, m.ID); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				_ = rbErr
			}
			return fmt.Errorf("record migration %s: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.ID, err)
		}
	}
	return nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM embedding_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query embedding_schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan embedding_schema_migrations: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
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

	tx, err := s.conn.BeginTx(ctx, nil)
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
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
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

// SimilaritySearch orders by cosine distance SQL-side. 1 - (a <=> b) is
// the cosine similarity in pgvector.
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, opts *vectorstore.SearchOptions) ([]*models.SimilarityResult, error) {
	if opts == nil {
		opts = vectorstore.DefaultSearchOptions()
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	// Dimension-mismatched or empty query vectors can never match any
	// record (similarity 0); skip the round trip.
	if len(query) != s.dimension {
		return []*models.SimilarityResult{}, nil
	}

	q := `
		SELECT id, document_id, chunk_index, chunk_text, metadata,
			1 - (vector <=> $1::vector) AS similarity
		FROM embeddings
		WHERE vector IS NOT NULL
	`
	args := []any{encodeVector(query)}
	argNum := 2

	if len(opts.DocumentIDs) > 0 {
		q += fmt.Sprintf(" AND document_id = ANY($%d)", argNum)
		args = append(args, pq.Array(opts.DocumentIDs))
		argNum++
	}
	if opts.Language != "" {
		q += fmt.Sprintf(" AND language = $%d", argNum)
		args = append(args, opts.Language)
		argNum++
	}
	if opts.Threshold > 0 {
		q += fmt.Sprintf(" AND (1 - (vector <=> $1::vector)) >= $%d", argNum)
		args = append(args, opts.Threshold)
		argNum++
	}

	q += " ORDER BY vector <=> $1::vector ASC"
	q += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, topK)

	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, vectorstore.SearchError(err)
	}
	defer rows.Close()

	var results []*models.SimilarityResult
	for rows.Next() {
		var (
			rec          models.SimilarityResult
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.ChunkIndex, &rec.ChunkText, &metadataJSON, &rec.Similarity); err != nil {
			return nil, vectorstore.SearchError(err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
				return nil, vectorstore.SearchError(err)
			}
		}
		results = append(results, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, vectorstore.SearchError(err)
	}
	return results, nil
}

// DeleteEmbeddings removes all records for a document.
func (s *Store) DeleteEmbeddings(ctx context.Context, documentID string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM embeddings WHERE document_id = $1", documentID)
	return err
}

// Count returns the number of stored records, optionally per document.
func (s *Store) Count(ctx context.Context, documentID string) (int64, error) {
	var (
		count int64
		err   error
	)
	if documentID == "" {
		err = s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count)
	} else {
		err = s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE document_id = $1", documentID).Scan(&count)
	}
	return count, err
}

// Close releases the connection if this store owns it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.conn.Close()
	}
	return nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// encodeVector renders a vector in pgvector text format: [0.1,0.2,...]
func encodeVector(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
