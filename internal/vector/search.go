package vector

import (
	"context"
	"fmt"
	"strings"

	"docbrain/internal/models"

	"github.com/jackc/pgx/v5"
)

// Query is a similarity search request. Threshold is a minimum cosine
// similarity in [0,1]; results below it are dropped even when fewer than
// TopK rows matched.
type Query struct {
	Vector     []float32
	TopK       int
	Threshold  float64
	DocumentID string
	UserID     string
}

// Searcher finds the chunks most similar to a query vector.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]models.ChunkResult, error)
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgSearcher runs cosine similarity search against the pgvector-backed
// chunks table. Only chunks of completed documents are candidates.
type PgSearcher struct {
	q Queryer
}

func NewPgSearcher(q Queryer) *PgSearcher {
	return &PgSearcher{q: q}
}

func (s *PgSearcher) Search(ctx context.Context, q Query) ([]models.ChunkResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}
	args := []any{ToLiteral(q.Vector), q.Threshold, topK}

	filterSQL := ""
	if q.DocumentID != "" {
		args = append(args, q.DocumentID)
		filterSQL += fmt.Sprintf(" AND c.document_id = $%d", len(args))
	}
	if q.UserID != "" {
		args = append(args, q.UserID)
		filterSQL += fmt.Sprintf(" AND d.user_id = $%d", len(args))
	}

	query := `
SELECT c.chunk_id,
       c.document_id,
       d.filename,
       c.content,
       1 - (c.embedding <=> $1::vector) AS score
FROM chunks c
JOIN documents d ON d.document_id = c.document_id
WHERE d.status = 'completed'
  AND 1 - (c.embedding <=> $1::vector) >= $2` + filterSQL + `
ORDER BY c.embedding <=> $1::vector, c.document_id, c.chunk_index
LIMIT $3`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ChunkResult, 0, topK)
	for rows.Next() {
		var r models.ChunkResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.DocumentName, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("scan chunk result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// ToLiteral renders a vector in the pgvector input format.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
