// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package policy holds the fixed per-kind configuration for privileged
// operation workflows. Values are compiled in on purpose: the engine
// supports exactly three workflow kinds with non-negotiable timings.
package policy

import "time"

// Kind identifies a workflow kind.
type Kind string

const (
	KindLoginOTP      Kind = "login_otp"
	KindAdminTransfer Kind = "admin_transfer"
	KindDeletion      Kind = "deletion"
)

// Purpose identifies what a verification token may be consumed for.
// Tokens are purpose-bound: a token issued for one purpose never
// validates against another.
type Purpose string

const (
	PurposeLoginOTP         Purpose = "login_otp"
	PurposePasswordReset    Purpose = "password_reset"
	PurposeAdminTransferOld Purpose = "admin_transfer_old"
	PurposeAdminTransferNew Purpose = "admin_transfer_new"
	PurposeDeletionAck      Purpose = "deletion_target_ack"
)

// Rules is one Policy Table row.
type Rules struct {
	TokenTTL              time.Duration
	ResendCooldown        time.Duration
	Deadline              time.Duration // outer bound after which the Sweeper terminates the workflow
	CompletionLock        time.Duration // minimum age before completion is permitted (transfers only)
	RequiredConfirmations int
}

var table = map[Kind]Rules{
	KindLoginOTP: {
		TokenTTL:              10 * time.Minute,
		ResendCooldown:        30 * time.Second,
		Deadline:              10 * time.Minute,
		RequiredConfirmations: 1,
	},
	KindAdminTransfer: {
		TokenTTL:              72 * time.Hour,
		ResendCooldown:        5 * time.Minute,
		Deadline:              72 * time.Hour,
		CompletionLock:        48 * time.Hour,
		RequiredConfirmations: 2,
	},
	KindDeletion: {
		TokenTTL:              30 * time.Minute,
		ResendCooldown:        5 * time.Minute,
		Deadline:              30 * time.Minute,
		RequiredConfirmations: 1,
	},
}

// purposeKind maps token purposes to the workflow kind whose rules govern them.
var purposeKind = map[Purpose]Kind{
	PurposeLoginOTP:         KindLoginOTP,
	PurposeAdminTransferOld: KindAdminTransfer,
	PurposeAdminTransferNew: KindAdminTransfer,
	PurposeDeletionAck:      KindDeletion,
}

// passwordResetRules covers the one purpose with no state machine behind it.
var passwordResetRules = Rules{
	TokenTTL:              time.Hour,
	ResendCooldown:        time.Minute,
	Deadline:              time.Hour,
	RequiredConfirmations: 1,
}

// ForKind returns the rules for a workflow kind.
func ForKind(k Kind) Rules {
	return table[k]
}

// ForPurpose returns the rules governing tokens of the given purpose.
func ForPurpose(p Purpose) Rules {
	if p == PurposePasswordReset {
		return passwordResetRules
	}
	return table[purposeKind[p]]
}

// Numeric reports whether tokens of the given purpose are short numeric
// codes typed by a human, as opposed to opaque secrets carried in a link.
func (p Purpose) Numeric() bool {
	return p == PurposeLoginOTP
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	if p == PurposePasswordReset {
		return true
	}
	_, ok := purposeKind[p]
	return ok
}
