package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/tutor/internal/models"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	BatchSize  int
}

// VectorStore is an Index kept in PostgreSQL with the pgvector extension.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
	table  string

	mu        sync.RWMutex
	count     int
	dimension int
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.ConnString == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
		table:  pgx.Identifier{config.TableName}.Sanitize(),
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	if err := vs.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	// Enable pgvector extension
	if _, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	return nil
}

// Load recreates the table for the vectors' dimension and inserts every
// chunk in one transaction. A failed load leaves the previous table intact.
func (vs *VectorStore) Load(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	dim, err := checkVectors(chunks, vectors)
	if err != nil {
		return err
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.table)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			chunk_offset INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB
		)`, vs.table, dim)
	if _, err := tx.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (position, id, source_id, chunk_offset, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, vs.table)

	for start := 0; start < len(chunks); start += vs.config.BatchSize {
		end := min(start+vs.config.BatchSize, len(chunks))

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			c := chunks[i]
			batch.Queue(stmt,
				i,
				c.ID,
				sanitizeUTF8(c.SourceID),
				c.Offset,
				sanitizeUTF8(c.Text),
				pgvector.NewVector(vectors[i]),
				c.Metadata,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	vs.mu.Lock()
	vs.count, vs.dimension = len(chunks), dim
	vs.mu.Unlock()
	return nil
}

// Search orders rows by cosine distance to query. Ties fall back to load order.
func (vs *VectorStore) Search(ctx context.Context, query []float32, k int) ([]models.Chunk, error) {
	vs.mu.RLock()
	count, dim := vs.count, vs.dimension
	vs.mu.RUnlock()

	if count == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), dim)
	}

	q := fmt.Sprintf(`
		SELECT id, source_id, chunk_offset, content, metadata
		FROM %s
		ORDER BY embedding <=> $1, position
		LIMIT $2`, vs.table)

	rows, err := vs.pool.Query(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Offset, &c.Text, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return chunks, nil
}

func (vs *VectorStore) Len() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.count
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops bytes PostgreSQL refuses in TEXT columns.
func sanitizeUTF8(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
