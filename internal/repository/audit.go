// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/mwaldner/veriflow/internal/models"
)

// AppendAuditEntry writes one audit ledger record. The ledger is
// append-only; no update or delete statement for audit_log exists
// anywhere in this codebase.
func (r *Repository) AppendAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (action, category, actor_user_id, target_user_id, detail, origin, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Action, e.Category, e.ActorUserID, e.TargetUserID, e.Detail, e.Origin, e.CreatedAt)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// AuditFilter narrows an audit log query. Zero values match everything.
type AuditFilter struct {
	Category string
	ActorID  int64
	TargetID int64
	Action   string
}

// QueryAuditLog returns matching entries in reverse-chronological order.
func (r *Repository) QueryAuditLog(ctx context.Context, f AuditFilter, limit, offset int) ([]models.AuditEntry, error) {
	query := `SELECT * FROM audit_log WHERE 1 = 1`
	var args []any
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.ActorID != 0 {
		query += ` AND actor_user_id = ?`
		args = append(args, f.ActorID)
	}
	if f.TargetID != 0 {
		query += ` AND target_user_id = ?`
		args = append(args, f.TargetID)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var out []models.AuditEntry
	err := r.db.SelectContext(ctx, &out, query, args...)
	return out, err
}
