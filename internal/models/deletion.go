// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package models

import "time"

// Deletion workflow states.
const (
	DeletionPending   = "pending"
	DeletionVerified  = "verified"
	DeletionCompleted = "completed"
	DeletionCancelled = "cancelled"
	DeletionExpired   = "expired"
)

// DeletionOpenStates are the non-terminal states a sweeper pass scans.
var DeletionOpenStates = []string{DeletionPending, DeletionVerified}

// DeletionWorkflow is one target-acknowledged soft-deletion workflow.
// If the target does not confirm before ExpiresAt the sweeper cancels it
// and the target user is left untouched.
type DeletionWorkflow struct { //nolint:govet // fieldalignment not critical for models
	ID              string    `db:"id" json:"id"`
	TargetUserID    int64     `db:"target_user_id" json:"target_user_id"`
	RequestedBy     int64     `db:"requested_by" json:"requested_by"`
	State           string    `db:"state" json:"state"`
	AdminConfirmed  bool      `db:"admin_confirmed" json:"admin_confirmed"`
	TargetConfirmed bool      `db:"target_confirmed" json:"target_confirmed"`
	Reason          string    `db:"reason" json:"reason"`
	CancelReason    *string   `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
}

// Terminal reports whether the workflow reached a final state.
func (d *DeletionWorkflow) Terminal() bool {
	switch d.State {
	case DeletionCompleted, DeletionCancelled, DeletionExpired:
		return true
	}
	return false
}
