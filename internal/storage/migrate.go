package storage

import (
	"context"
	"fmt"
)

func migrations(embedDim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			document_id   UUID PRIMARY KEY,
			filename      TEXT NOT NULL,
			content_type  TEXT NOT NULL DEFAULT '',
			size_bytes    BIGINT NOT NULL DEFAULT 0,
			status        TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			storage_key   TEXT,
			user_id       TEXT,
			chunk_count   INT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			chunk_id    TEXT PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			metadata    JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (document_id, chunk_index)
		)`, embedDim),
		`CREATE TABLE IF NOT EXISTS audit_log (
			entry_id      UUID PRIMARY KEY,
			user_id       TEXT,
			action        TEXT NOT NULL,
			resource_type TEXT NOT NULL DEFAULT '',
			resource_id   TEXT NOT NULL DEFAULT '',
			details       JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id, chunk_index)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, created_at)`,
		// Approximate nearest-neighbor index for sub-100ms cosine search.
		`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
}

// Migrate applies the schema sized for the configured embedding dimension.
// Statements are idempotent so it is safe to run on every startup. A dimension
// change against an existing chunks table requires a manual rebuild, so the
// running schema is checked against the configured dimension first.
func Migrate(ctx context.Context, db *DB, embedDim int) error {
	if embedDim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", embedDim)
	}
	for _, stmt := range migrations(embedDim) {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return checkEmbeddingDim(ctx, db, embedDim)
}

// checkEmbeddingDim compares the chunks.embedding column dimension with the
// configured one. atttypmod holds the declared dimension for vector columns.
func checkEmbeddingDim(ctx context.Context, db *DB, embedDim int) error {
	var dim int
	err := db.Pool.QueryRow(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'chunks' AND a.attname = 'embedding'`).Scan(&dim)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if dim != embedDim {
		return fmt.Errorf("chunks.embedding is vector(%d) but the configured dimension is %d", dim, embedDim)
	}
	return nil
}
