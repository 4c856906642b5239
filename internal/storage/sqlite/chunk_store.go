// Package sqlite persists chunk text and vectors so the in-memory index can
// be rebuilt on startup.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"gopherai-docqa/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	end_page    INTEGER NOT NULL DEFAULT 0,
	filename    TEXT NOT NULL,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	UNIQUE (document_id, ordinal)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

type ChunkStore struct {
	db *sql.DB
}

func NewChunkStore(ctx context.Context, db *sql.DB) (*ChunkStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create chunk schema failed: %w", err)
	}
	return &ChunkStore{db: db}, nil
}

// SaveChunks writes all chunks in one transaction.
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk tx failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, page, end_page, filename, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal = excluded.ordinal,
			page = excluded.page,
			end_page = excluded.end_page,
			filename = excluded.filename,
			content = excluded.content,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert failed: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, c.Page, c.EndPage,
			c.Filename, c.Text, EncodeEmbedding(c.Vector), created.UnixMilli()); err != nil {
			return fmt.Errorf("insert chunk %s failed: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunk tx failed: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk of documentID and returns the count.
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete chunks failed: %w", err)
	}
	return int(n), nil
}

// GetByIDs returns the chunks with the given ids keyed by id. Unknown ids
// are absent from the map.
func (s *ChunkStore) GetByIDs(ctx context.Context, ids []string) (map[string]model.Chunk, error) {
	out := make(map[string]model.Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, document_id, ordinal, page, end_page, filename, content, embedding, created_at
		FROM chunks WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks failed: %w", err)
	}
	return out, nil
}

// ListAll streams every chunk in insertion order to fn.
func (s *ChunkStore) ListAll(ctx context.Context, fn func(model.Chunk) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, ordinal, page, end_page, filename, content, embedding, created_at
		FROM chunks ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("list chunks failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate chunks failed: %w", err)
	}
	return nil
}

// CountByDocument returns the number of stored chunks for documentID.
func (s *ChunkStore) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return n, nil
}

func scanChunk(rows *sql.Rows) (model.Chunk, error) {
	var (
		c       model.Chunk
		blob    []byte
		created int64
	)
	if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Page, &c.EndPage, &c.Filename, &c.Text, &blob, &created); err != nil {
		return model.Chunk{}, fmt.Errorf("scan chunk failed: %w", err)
	}
	vec, err := DecodeEmbedding(blob)
	if err != nil {
		return model.Chunk{}, fmt.Errorf("chunk %s: %w", c.ID, err)
	}
	c.Vector = vec
	c.CreatedAt = time.UnixMilli(created)
	return c, nil
}

// EncodeEmbedding stores a vector as little-endian float32 values.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
