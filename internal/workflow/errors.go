// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package workflow defines the error taxonomy shared by all privileged
// operation state machines. Every value is a recoverable, caller-visible
// outcome; none of them should ever crash the process.
package workflow

import "errors"

var (
	// ErrInvalidToken covers unknown, malformed, and wrong-purpose tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is past its expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenConsumed is returned on a second consume of the same token.
	ErrTokenConsumed = errors.New("token already consumed")
	// ErrConflict means the workflow state already advanced past the
	// expected precondition, e.g. a cancel racing a sweeper expiry.
	ErrConflict = errors.New("workflow state conflict")
	// ErrUnauthorized means the caller lacks the required role or failed
	// password re-authentication.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPreconditionFailed covers caller-side guard failures such as a
	// confirmation text mismatch or an unapproved target user.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrCooldownActive is returned when a resend is requested before the
	// cooldown window has elapsed.
	ErrCooldownActive = errors.New("resend cooldown active")
	// ErrTransferInProgress rejects a second admin transfer while another
	// one is still non-terminal.
	ErrTransferInProgress = errors.New("admin transfer already in progress")
	// ErrNotFound is returned for unknown workflow or user identifiers.
	ErrNotFound = errors.New("not found")
)
