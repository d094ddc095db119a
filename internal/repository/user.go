// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/vinovest/sqlx"

	"github.com/mwaldner/veriflow/internal/models"
)

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// CreateUser creates a new user and fills in its ID.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, status, email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.Role, user.Status, user.EmailVerified, now, now)
	if err != nil {
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

// GetAdmin returns the user currently holding the admin role.
func (r *Repository) GetAdmin(ctx context.Context) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE role = ? AND is_deleted = 0`, models.RoleAdmin)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// CountAdmins returns the number of users holding the admin role.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE role = ? AND is_deleted = 0`, models.RoleAdmin)
	return count, err
}

// UpdateUserStatus sets the account status of a user.
func (r *Repository) UpdateUserStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	return err
}

// MarkEmailVerified records that the user's email address is verified.
func (r *Repository) MarkEmailVerified(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return err
}

// SwapAdminRole demotes the current admin and promotes the successor in
// one transaction. Both updates must hit exactly one row each, keeping
// exactly one admin in existence at every commit point.
func (r *Repository) SwapAdminRole(ctx context.Context, fromUserID, toUserID int64) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()

		res, err := tx.ExecContext(ctx,
			`UPDATE users SET role = ?, updated_at = ? WHERE id = ? AND role = ?`,
			models.RoleUser, now, fromUserID, models.RoleAdmin)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return ErrNotFound
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
			return ErrNotFound
		}

		return nil
	})
}

// SoftDeleteUser marks a user deleted without erasing the row. The row
// is retained for the external retention window.
func (r *Repository) SoftDeleteUser(ctx context.Context, id, deletedBy int64) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_deleted = 1, deleted_at = ?, deleted_by = ?, updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		now, deletedBy, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
