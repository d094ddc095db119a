// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package models

import "time"

// Admin transfer states. The two partially-confirmed states record which
// party confirmed first; both orderings converge on the same flags.
const (
	TransferPending        = "pending"
	TransferConfirmedByOld = "confirmed_by_old"
	TransferConfirmedByNew = "confirmed_by_new"
	TransferCompleted      = "completed"
	TransferCancelled      = "cancelled"
	TransferExpired        = "expired"
)

// TransferOpenStates are the non-terminal states. At most one transfer
// may occupy any of them system-wide.
var TransferOpenStates = []string{TransferPending, TransferConfirmedByOld, TransferConfirmedByNew}

// AdminTransfer is one admin-role handover workflow. Completion requires
// both confirmations and the 48h lock to have elapsed; the outer deadline
// is enforced by the sweeper.
type AdminTransfer struct { //nolint:govet // fieldalignment not critical for models
	ID           string    `db:"id" json:"id"`
	FromUserID   int64     `db:"from_user_id" json:"from_user_id"`
	ToUserID     int64     `db:"to_user_id" json:"to_user_id"`
	State        string    `db:"state" json:"state"`
	OldConfirmed bool      `db:"old_confirmed" json:"old_confirmed"`
	NewConfirmed bool      `db:"new_confirmed" json:"new_confirmed"`
	InitiatedAt  time.Time `db:"initiated_at" json:"initiated_at"`
	CompletesAt  time.Time `db:"completes_at" json:"completes_at"`
	DeadlineAt   time.Time `db:"deadline_at" json:"deadline_at"`
	CancelledBy  *int64    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelReason *string   `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// Terminal reports whether the transfer reached a final state.
func (t *AdminTransfer) Terminal() bool {
	switch t.State {
	case TransferCompleted, TransferCancelled, TransferExpired:
		return true
	}
	return false
}

// Ready reports whether the transfer may complete at the given instant.
func (t *AdminTransfer) Ready(now time.Time) bool {
	return !t.Terminal() && t.OldConfirmed && t.NewConfirmed && !now.Before(t.CompletesAt)
}
