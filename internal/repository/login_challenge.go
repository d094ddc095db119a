// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"github.com/mwaldner/veriflow/internal/models"
)

// CreateLoginChallenge persists a new login challenge.
func (r *Repository) CreateLoginChallenge(ctx context.Context, c *models.LoginChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO login_challenges (id, user_id, state, delivered_to, attempts, created_at, expires_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		c.ID, c.UserID, c.State, c.DeliveredTo, c.CreatedAt, c.ExpiresAt)
	return err
}

// GetLoginChallenge retrieves a login challenge by ID.
func (r *Repository) GetLoginChallenge(ctx context.Context, id string) (*models.LoginChallenge, error) {
	var c models.LoginChallenge
	err := r.db.GetContext(ctx, &c, `SELECT * FROM login_challenges WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &c, nil
}

// TransitionLoginChallenge atomically moves a challenge from pending to
// the given state. Returns false if the challenge already left pending.
func (r *Repository) TransitionLoginChallenge(ctx context.Context, id, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE login_challenges SET state = ? WHERE id = ? AND state = ?`,
		to, id, models.ChallengePending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// IncrementChallengeAttempts counts one failed code entry. Attempts do
// not change the challenge state.
func (r *Repository) IncrementChallengeAttempts(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE login_challenges SET attempts = attempts + 1 WHERE id = ?`, id)
	return err
}

// OpenLoginChallenges returns all pending challenges for a sweeper pass.
func (r *Repository) OpenLoginChallenges(ctx context.Context) ([]models.LoginChallenge, error) {
	var out []models.LoginChallenge
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM login_challenges WHERE state = ? ORDER BY created_at`, models.ChallengePending)
	return out, err
}
