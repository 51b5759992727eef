package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"docbrain/internal/models"
)

type ChunkRecord struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	// Embedding is a pgvector literal, e.g. "[0.1,0.2,...]".
	Embedding string
	Metadata  map[string]string
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertDocumentChunks persists a document's full chunk set and marks the
// document completed in one transaction. Any existing chunks for the document
// are replaced, so re-processing is idempotent. On error everything rolls back
// and the document keeps its prior status.
func (r *ChunkRepo) InsertDocumentChunks(ctx context.Context, documentID, note string, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to insert for document %s", documentID)
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx insert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1::uuid`, documentID); err != nil {
		return fmt.Errorf("clear prior chunks: %w", err)
	}
	for _, c := range chunks {
		var meta []byte
		if len(c.Metadata) > 0 {
			meta, err = json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("marshal chunk metadata: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, chunk_index, content, embedding, metadata)
VALUES ($1, $2::uuid, $3, $4, $5::vector, $6)`,
			c.ChunkID, c.DocumentID, c.ChunkIndex, c.Content, c.Embedding, meta,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err)
		}
	}
	tag, err := tx.Exec(ctx, `
UPDATE documents
SET status=$2, chunk_count=$3, error_message=NULLIF($4,''), updated_at=NOW()
WHERE document_id=$1::uuid AND status=$5`,
		documentID, models.StatusCompleted, len(chunks), note, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not in processing state", documentID)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

// DeleteDocumentChunks drops every chunk of a document and marks it failed in
// one transaction, so a failed ingestion never leaves a partial chunk set.
func (r *ChunkRepo) DeleteDocumentChunks(ctx context.Context, documentID, errorMessage string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx delete chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id=$1::uuid`, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE documents
SET status=$2, chunk_count=0, error_message=NULLIF($3,''), updated_at=NOW()
WHERE document_id=$1::uuid AND status <> $4`,
		documentID, models.StatusFailed, errorMessage, models.StatusCompleted); err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT chunk_id, document_id::text, chunk_index, content, created_at
FROM chunks
WHERE document_id=$1::uuid
ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()
	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

type StoreStats struct {
	DocumentCount int `json:"document_count"`
	ChunkCount    int `json:"chunk_count"`
}

func (r *ChunkRepo) Stats(ctx context.Context) (StoreStats, error) {
	var s StoreStats
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT document_id), COUNT(*) FROM chunks`).
		Scan(&s.DocumentCount, &s.ChunkCount)
	if err != nil {
		return StoreStats{}, fmt.Errorf("vector store stats: %w", err)
	}
	return s, nil
}
