// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mwaldner/veriflow/internal/policy"
)

func TestForKind(t *testing.T) {
	otp := policy.ForKind(policy.KindLoginOTP)
	assert.Equal(t, 10*time.Minute, otp.TokenTTL)
	assert.Equal(t, 30*time.Second, otp.ResendCooldown)
	assert.Equal(t, 1, otp.RequiredConfirmations)
	assert.Zero(t, otp.CompletionLock)

	xfer := policy.ForKind(policy.KindAdminTransfer)
	assert.Equal(t, 72*time.Hour, xfer.Deadline)
	assert.Equal(t, 48*time.Hour, xfer.CompletionLock)
	assert.Equal(t, 2, xfer.RequiredConfirmations)
	// The lock must leave room inside the outer deadline.
	assert.Less(t, xfer.CompletionLock, xfer.Deadline)

	del := policy.ForKind(policy.KindDeletion)
	assert.Equal(t, 30*time.Minute, del.Deadline)
	assert.Equal(t, 1, del.RequiredConfirmations)
}

func TestForPurpose(t *testing.T) {
	assert.Equal(t, policy.ForKind(policy.KindAdminTransfer), policy.ForPurpose(policy.PurposeAdminTransferOld))
	assert.Equal(t, policy.ForKind(policy.KindAdminTransfer), policy.ForPurpose(policy.PurposeAdminTransferNew))
	assert.Equal(t, policy.ForKind(policy.KindLoginOTP), policy.ForPurpose(policy.PurposeLoginOTP))
	assert.Equal(t, policy.ForKind(policy.KindDeletion), policy.ForPurpose(policy.PurposeDeletionAck))
	assert.Equal(t, time.Hour, policy.ForPurpose(policy.PurposePasswordReset).TokenTTL)
}

func TestPurposeNumeric(t *testing.T) {
	assert.True(t, policy.PurposeLoginOTP.Numeric())
	assert.False(t, policy.PurposeAdminTransferOld.Numeric())
	assert.False(t, policy.PurposeDeletionAck.Numeric())
}

func TestPurposeValid(t *testing.T) {
	assert.True(t, policy.PurposeLoginOTP.Valid())
	assert.True(t, policy.PurposePasswordReset.Valid())
	assert.False(t, policy.Purpose("made_up").Valid())
}
