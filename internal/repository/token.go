// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
)

// CreateVerificationToken persists a new token and fills in its ID.
func (r *Repository) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (user_id, purpose, secret_hash, issued_at, expires_at, consumed)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		token.UserID, token.Purpose, token.SecretHash, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		return err
	}
	token.ID, err = res.LastInsertId()
	return err
}

// GetTokenByHash retrieves a token by its secret hash, purpose, and subject.
func (r *Repository) GetTokenByHash(ctx context.Context, secretHash string, purpose policy.Purpose, userID int64) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := r.db.GetContext(ctx, &token,
		`SELECT * FROM verification_tokens WHERE secret_hash = ? AND purpose = ? AND user_id = ?`,
		secretHash, purpose, userID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// GetTokenByHashAnySubject retrieves a token by secret hash and purpose
// alone, for link tokens that identify their subject themselves.
func (r *Repository) GetTokenByHashAnySubject(ctx context.Context, secretHash string, purpose policy.Purpose) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := r.db.GetContext(ctx, &token,
		`SELECT * FROM verification_tokens WHERE secret_hash = ? AND purpose = ?`,
		secretHash, purpose)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// LatestToken returns the most recently issued token for a subject and
// purpose, consumed or not. Used for resend cooldown checks.
func (r *Repository) LatestToken(ctx context.Context, userID int64, purpose policy.Purpose) (*models.VerificationToken, error) {
	var token models.VerificationToken
	err := r.db.GetContext(ctx, &token,
		`SELECT * FROM verification_tokens WHERE user_id = ? AND purpose = ?
		 ORDER BY issued_at DESC, id DESC LIMIT 1`,
		userID, purpose)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// InvalidateTokens marks all unconsumed tokens of a subject and purpose
// as consumed, so a newly issued token is the only active one.
func (r *Repository) InvalidateTokens(ctx context.Context, userID int64, purpose policy.Purpose) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET consumed = 1 WHERE user_id = ? AND purpose = ? AND consumed = 0`,
		userID, purpose)
	return err
}

// ConsumeToken atomically marks a token consumed. Returns false when a
// concurrent caller consumed it first.
func (r *Repository) ConsumeToken(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET consumed = 1 WHERE id = ? AND consumed = 0`,
		id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// DeleteExpiredTokens removes tokens whose expiry is in the past.
// Housekeeping only; expiry is always re-checked on consume.
func (r *Repository) DeleteExpiredTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at < ?`, time.Now().UTC())
	return err
}
