package storage

import (
	"context"
	"errors"
	"fmt"

	"docbrain/internal/models"
	"docbrain/internal/util"

	"github.com/jackc/pgx/v5"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `document_id::text, filename, content_type, size_bytes, status,
       COALESCE(error_message,''), COALESCE(storage_key,''), COALESCE(user_id,''),
       chunk_count, created_at, updated_at`

// allowedPrior enforces the monotonic lifecycle
// pending -> processing -> completed|failed.
var allowedPrior = map[string][]string{
	models.StatusProcessing: {models.StatusPending},
	models.StatusCompleted:  {models.StatusProcessing},
	models.StatusFailed:     {models.StatusPending, models.StatusProcessing},
}

func (r *DocumentRepo) Create(ctx context.Context, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, filename, content_type, size_bytes, status, storage_key, user_id)
VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''))`,
		d.DocumentID, d.Filename, d.ContentType, d.SizeBytes, models.StatusPending, d.StorageKey, d.UserID,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, documentID, status, errorMessage string) error {
	prior, ok := allowedPrior[status]
	if !ok {
		return fmt.Errorf("unknown document status %q", status)
	}
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents SET status=$2, error_message=NULLIF($3,''), updated_at=NOW()
WHERE document_id=$1::uuid AND status = ANY($4)`,
		documentID, status, errorMessage, prior)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: no transition to %s: %w", documentID, status, util.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, documentID string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE document_id=$1::uuid`, documentID).
		Scan(&d.DocumentID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.Status,
			&d.ErrorMessage, &d.StorageKey, &d.UserID, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", documentID, util.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (r *DocumentRepo) List(ctx context.Context, userID string, limit, offset int) ([]models.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE ($1 = '' OR user_id = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.DocumentID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.Status,
			&d.ErrorMessage, &d.StorageKey, &d.UserID, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// Delete removes the document row; chunks go with it via ON DELETE CASCADE.
func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE document_id=$1::uuid`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, util.ErrNotFound)
	}
	return nil
}
