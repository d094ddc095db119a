// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"

	"github.com/mwaldner/veriflow/internal/models"
)

// CreateDeletion persists a new deletion workflow.
func (r *Repository) CreateDeletion(ctx context.Context, d *models.DeletionWorkflow) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deletion_workflows
		 (id, target_user_id, requested_by, state, admin_confirmed, target_confirmed, reason, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TargetUserID, d.RequestedBy, d.State, d.AdminConfirmed, d.TargetConfirmed,
		d.Reason, d.CreatedAt, d.ExpiresAt)
	return err
}

// GetDeletionByID retrieves a deletion workflow by ID.
func (r *Repository) GetDeletionByID(ctx context.Context, id string) (*models.DeletionWorkflow, error) {
	var d models.DeletionWorkflow
	err := r.db.GetContext(ctx, &d, `SELECT * FROM deletion_workflows WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &d, nil
}

// GetOpenDeletionForTarget returns the non-terminal deletion workflow
// targeting a user, if any.
func (r *Repository) GetOpenDeletionForTarget(ctx context.Context, targetUserID int64) (*models.DeletionWorkflow, error) {
	marks, args := placeholders(models.DeletionOpenStates)
	allArgs := append([]any{targetUserID}, args...)
	var d models.DeletionWorkflow
	err := r.db.GetContext(ctx, &d,
		`SELECT * FROM deletion_workflows WHERE target_user_id = ? AND state IN (`+marks+`)`, allArgs...)
	if err != nil {
		return nil, wrapError(err)
	}
	return &d, nil
}

// ListOpenDeletions returns all non-terminal deletion workflows.
func (r *Repository) ListOpenDeletions(ctx context.Context) ([]models.DeletionWorkflow, error) {
	marks, args := placeholders(models.DeletionOpenStates)
	var out []models.DeletionWorkflow
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM deletion_workflows WHERE state IN (`+marks+`) ORDER BY created_at`, args...)
	return out, err
}

// TransitionDeletion atomically moves a deletion workflow from one exact
// state to another, optionally setting the target-confirmed flag and a
// cancel reason. Returns false when the expected state no longer holds.
func (r *Repository) TransitionDeletion(ctx context.Context, id, from, to string, targetConfirmed bool, cancelReason *string) (bool, error) {
	var res sql.Result
	var err error
	if targetConfirmed {
		res, err = r.db.ExecContext(ctx,
			`UPDATE deletion_workflows SET state = ?, target_confirmed = 1, cancel_reason = ?
			 WHERE id = ? AND state = ?`, to, cancelReason, id, from)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE deletion_workflows SET state = ?, cancel_reason = ?
			 WHERE id = ? AND state = ?`, to, cancelReason, id, from)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
