// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/testutil"
)

func newToken(t *testing.T, repo *repository.Repository, userID int64, purpose policy.Purpose, hash string) *models.VerificationToken {
	t.Helper()
	now := time.Now().UTC()
	token := &models.VerificationToken{
		UserID:     userID,
		Purpose:    purpose,
		SecretHash: hash,
		IssuedAt:   now,
		ExpiresAt:  now.Add(10 * time.Minute),
	}
	require.NoError(t, repo.CreateVerificationToken(context.Background(), token))
	return token
}

func TestConsumeToken_AtomicSingleUse(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	token := newToken(t, repo, user.ID, policy.PurposeLoginOTP, "hash-1")

	won, err := repo.ConsumeToken(ctx, token.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// The guarded update makes the second consume lose, not corrupt.
	won, err = repo.ConsumeToken(ctx, token.ID)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestGetTokenByHash_SubjectAndPurposeBound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	alice := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	bob := testutil.NewTestUser(t, repo, "bob@example.com", models.RoleUser, models.StatusApproved)
	newToken(t, repo, alice.ID, policy.PurposeLoginOTP, "hash-1")

	_, err := repo.GetTokenByHash(ctx, "hash-1", policy.PurposeLoginOTP, alice.ID)
	require.NoError(t, err)

	// Wrong subject
	_, err = repo.GetTokenByHash(ctx, "hash-1", policy.PurposeLoginOTP, bob.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Wrong purpose
	_, err = repo.GetTokenByHash(ctx, "hash-1", policy.PurposeDeletionAck, alice.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInvalidateTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	old := newToken(t, repo, user.ID, policy.PurposeLoginOTP, "hash-old")
	other := newToken(t, repo, user.ID, policy.PurposeDeletionAck, "hash-other")

	require.NoError(t, repo.InvalidateTokens(ctx, user.ID, policy.PurposeLoginOTP))

	got, err := repo.GetTokenByHash(ctx, "hash-old", policy.PurposeLoginOTP, user.ID)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
	assert.Equal(t, old.ID, got.ID)

	// Tokens of other purposes are untouched.
	got, err = repo.GetTokenByHash(ctx, "hash-other", policy.PurposeDeletionAck, user.ID)
	require.NoError(t, err)
	assert.False(t, got.Consumed)
	assert.Equal(t, other.ID, got.ID)
}

func TestLatestToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)

	_, err := repo.LatestToken(ctx, user.ID, policy.PurposeLoginOTP)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	first := newToken(t, repo, user.ID, policy.PurposeLoginOTP, "hash-1")
	second := newToken(t, repo, user.ID, policy.PurposeLoginOTP, "hash-2")

	latest, err := repo.LatestToken(ctx, user.ID, policy.PurposeLoginOTP)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.NotEqual(t, first.ID, latest.ID)
}

func TestDeleteExpiredTokens(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	expired := newToken(t, repo, user.ID, policy.PurposeLoginOTP, "hash-expired")
	newToken(t, repo, user.ID, policy.PurposeDeletionAck, "hash-valid")

	_, err := db.ExecContext(ctx,
		`UPDATE verification_tokens SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), expired.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteExpiredTokens(ctx))

	_, err = repo.GetTokenByHash(ctx, "hash-expired", policy.PurposeLoginOTP, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetTokenByHash(ctx, "hash-valid", policy.PurposeDeletionAck, user.ID)
	require.NoError(t, err)
}
