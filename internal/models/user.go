// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package models

import "time"

// User roles. Exactly one user holds RoleAdmin at any instant; the
// invariant is enforced by the admin transfer workflow, not here.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User account statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type User struct { //nolint:govet // fieldalignment not critical for models
	ID            int64      `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	Role          string     `db:"role" json:"role"`
	Status        string     `db:"status" json:"status"`
	EmailVerified bool       `db:"email_verified" json:"email_verified"`
	IsDeleted     bool       `db:"is_deleted" json:"is_deleted"`
	DeletedAt     *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy     *int64     `db:"deleted_by" json:"deleted_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user currently holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
