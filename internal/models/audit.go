// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package models

import "time"

// Audit categories.
const (
	AuditAuth     = "auth"
	AuditUser     = "user"
	AuditAdmin    = "admin"
	AuditSecurity = "security"
	AuditData     = "data"
)

// AuditEntry is one append-only audit ledger record. Entries are never
// updated or deleted.
type AuditEntry struct { //nolint:govet // fieldalignment not critical for models
	ID           int64     `db:"id" json:"id"`
	Action       string    `db:"action" json:"action"`
	Category     string    `db:"category" json:"category"`
	ActorUserID  *int64    `db:"actor_user_id" json:"actor_user_id,omitempty"`
	TargetUserID *int64    `db:"target_user_id" json:"target_user_id,omitempty"`
	Detail       string    `db:"detail" json:"detail"`
	Origin       string    `db:"origin" json:"origin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
