// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package models

import (
	"time"

	"github.com/mwaldner/veriflow/internal/policy"
)

// VerificationToken stores a hashed single-use secret bound to a subject
// user and a purpose. Only the SHA-256 hash is persisted; the plaintext
// exists once, in the message delivered to the user.
type VerificationToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64          `db:"id" json:"id"`
	UserID     int64          `db:"user_id" json:"user_id"`
	Purpose    policy.Purpose `db:"purpose" json:"purpose"`
	SecretHash string         `db:"secret_hash" json:"-"`
	IssuedAt   time.Time      `db:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time      `db:"expires_at" json:"expires_at"`
	Consumed   bool           `db:"consumed" json:"consumed"`
}
