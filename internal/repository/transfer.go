// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vinovest/sqlx"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/workflow"
)

// CreateTransfer persists a new admin transfer. The partial unique index
// on non-terminal states enforces the single-flight invariant inside the
// insert itself; a concurrent second initiation loses here, not in some
// earlier read.
func (r *Repository) CreateTransfer(ctx context.Context, t *models.AdminTransfer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_transfers
		 (id, from_user_id, to_user_id, state, old_confirmed, new_confirmed, initiated_at, completes_at, deadline_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		t.ID, t.FromUserID, t.ToUserID, t.State, t.InitiatedAt, t.CompletesAt, t.DeadlineAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create transfer: %w", workflow.ErrTransferInProgress)
	}
	return err
}

// GetTransferByID retrieves a transfer by ID.
func (r *Repository) GetTransferByID(ctx context.Context, id string) (*models.AdminTransfer, error) {
	var t models.AdminTransfer
	err := r.db.GetContext(ctx, &t, `SELECT * FROM admin_transfers WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &t, nil
}

// GetOpenTransfer returns the single non-terminal transfer, if any.
func (r *Repository) GetOpenTransfer(ctx context.Context) (*models.AdminTransfer, error) {
	marks, args := placeholders(models.TransferOpenStates)
	var t models.AdminTransfer
	err := r.db.GetContext(ctx, &t,
		`SELECT * FROM admin_transfers WHERE state IN (`+marks+`)`, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	return &t, nil
}

// ConfirmTransferSide atomically records one party's confirmation and
// moves the state forward. The update is guarded on the confirmation
// flag still being unset, so a duplicate confirm affects zero rows and
// the caller treats it as a no-op.
func (r *Repository) ConfirmTransferSide(ctx context.Context, id string, old bool) (bool, error) {
	var flag, query string
	if old {
		flag = "old_confirmed"
	} else {
		flag = "new_confirmed"
	}
	marks, args := placeholders(models.TransferOpenStates)
	query = `UPDATE admin_transfers SET ` + flag + ` = 1,
		 state = CASE WHEN old_confirmed = 1 OR new_confirmed = 1 THEN state ELSE ? END
		 WHERE id = ? AND ` + flag + ` = 0 AND state IN (` + marks + `)`

	to := models.TransferConfirmedByNew
	if old {
		to = models.TransferConfirmedByOld
	}
	allArgs := append([]any{to, id}, args...)
	res, err := r.db.ExecContext(ctx, query, allArgs...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// CompleteTransfer commits the terminal completed state and the admin
// role swap in one transaction. The state guard additionally requires
// both confirmation flags, so a completion racing a cancel or expiry
// loses cleanly. Returns false when the transition was not won.
func (r *Repository) CompleteTransfer(ctx context.Context, id string, fromUserID, toUserID int64) (bool, error) {
	won := false
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		marks, args := placeholders(models.TransferOpenStates)
		allArgs := append([]any{models.TransferCompleted, id}, args...)
		res, err := tx.ExecContext(ctx,
			`UPDATE admin_transfers SET state = ?
			 WHERE id = ? AND state IN (`+marks+`) AND old_confirmed = 1 AND new_confirmed = 1`,
			allArgs...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return nil
		}

		now := time.Now().UTC()
		res, err = tx.ExecContext(ctx,
			`UPDATE users SET role = ?, updated_at = ? WHERE id = ? AND role = ?`,
			models.RoleUser, now, fromUserID, models.RoleAdmin)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return fmt.Errorf("complete transfer: initiator no longer holds the admin role")
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE users SET role = ?, updated_at = ?
			 WHERE id = ? AND role = ? AND status = ? AND is_deleted = 0`,
			models.RoleAdmin, now, toUserID, models.RoleUser, models.StatusApproved)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return fmt.Errorf("complete transfer: successor is not eligible")
		}

		won = true
		return nil
	})
	return won, err
}

// TransitionTransfer atomically moves a transfer from any of the given
// states to a terminal state, recording who cancelled and why.
func (r *Repository) TransitionTransfer(ctx context.Context, id string, from []string, to string, cancelledBy *int64, cancelReason *string) (bool, error) {
	marks, args := placeholders(from)
	allArgs := append([]any{to, cancelledBy, cancelReason, id}, args...)
	res, err := r.db.ExecContext(ctx,
		`UPDATE admin_transfers SET state = ?, cancelled_by = ?, cancel_reason = ?
		 WHERE id = ? AND state IN (`+marks+`)`, allArgs...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
