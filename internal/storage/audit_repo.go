package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"docbrain/internal/models"

	"github.com/google/uuid"
)

// AuditRepo writes the append-only audit_log table. Entries are never updated
// or deleted here; retention is an operational concern.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, e models.AuditEntry) error {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	var details []byte
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = b
	}
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO audit_log (entry_id, user_id, action, resource_type, resource_id, details)
VALUES ($1::uuid, NULLIF($2,''), $3, $4, $5, $6)`,
		e.EntryID, e.UserID, e.Action, e.ResourceType, e.ResourceID, details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
