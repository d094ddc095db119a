// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/services/session"
	"github.com/mwaldner/veriflow/internal/testutil"
)

func TestIssueAndDecode(t *testing.T) {
	svc := testutil.NewTestSessions(t)

	token, err := svc.Issue(42, "alice@example.com", models.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := svc.Decode(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, user.IssuedAt.IsZero())
}

func TestDecode_RejectsTamperedToken(t *testing.T) {
	svc := testutil.NewTestSessions(t)

	token, err := svc.Issue(42, "alice@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.Decode(token + "x")
	assert.Error(t, err)

	_, err = svc.Decode("garbage")
	assert.Error(t, err)
}

func TestDecode_RejectsForeignKey(t *testing.T) {
	svc := testutil.NewTestSessions(t)
	other, err := session.NewService(
		"000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f", "", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue(42, "alice@example.com", models.RoleUser)
	require.NoError(t, err)

	_, err = svc.Decode(token)
	assert.Error(t, err)
}

func TestNewService_RejectsBadKeys(t *testing.T) {
	_, err := session.NewService("not-hex", "", time.Hour)
	assert.Error(t, err)

	// Too short
	_, err = session.NewService("abcd", "", time.Hour)
	assert.Error(t, err)

	_, err = session.NewService(
		"000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f",
		"short", time.Hour)
	assert.Error(t, err)
}
