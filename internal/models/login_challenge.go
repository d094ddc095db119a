// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package models

import "time"

// Login challenge states.
const (
	ChallengePending   = "pending"
	ChallengeCompleted = "completed"
	ChallengeExpired   = "expired"
)

// LoginChallenge is one login-OTP workflow instance. The code itself
// lives in verification_tokens; the challenge row carries the workflow
// state and the invalid-attempt counter.
type LoginChallenge struct { //nolint:govet // fieldalignment not critical for models
	ID          string    `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	State       string    `db:"state" json:"state"`
	DeliveredTo string    `db:"delivered_to" json:"delivered_to"`
	Attempts    int64     `db:"attempts" json:"attempts"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
}

// Terminal reports whether the challenge reached a final state.
func (c *LoginChallenge) Terminal() bool {
	return c.State != ChallengePending
}
