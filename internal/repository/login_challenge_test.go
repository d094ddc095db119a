// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/testutil"
)

func newChallenge(t *testing.T, repo *repository.Repository, userID int64, email string) *models.LoginChallenge {
	t.Helper()
	now := time.Now().UTC()
	c := &models.LoginChallenge{
		ID:          uuid.NewString(),
		UserID:      userID,
		State:       models.ChallengePending,
		DeliveredTo: email,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
	require.NoError(t, repo.CreateLoginChallenge(context.Background(), c))
	return c
}

func TestTransitionLoginChallenge_OnlyFromPending(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	c := newChallenge(t, repo, user.ID, user.Email)

	won, err := repo.TransitionLoginChallenge(ctx, c.ID, models.ChallengeCompleted)
	require.NoError(t, err)
	assert.True(t, won)

	// The challenge left pending; a racing expiry loses.
	won, err = repo.TransitionLoginChallenge(ctx, c.ID, models.ChallengeExpired)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := repo.GetLoginChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCompleted, got.State)
}

func TestIncrementChallengeAttempts(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	c := newChallenge(t, repo, user.ID, user.Email)

	require.NoError(t, repo.IncrementChallengeAttempts(ctx, c.ID))
	require.NoError(t, repo.IncrementChallengeAttempts(ctx, c.ID))

	got, err := repo.GetLoginChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Attempts)
	// Failed attempts never change the state.
	assert.Equal(t, models.ChallengePending, got.State)
}

func TestOpenLoginChallenges(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	open := newChallenge(t, repo, user.ID, user.Email)
	done := newChallenge(t, repo, user.ID, user.Email)

	won, err := repo.TransitionLoginChallenge(ctx, done.ID, models.ChallengeCompleted)
	require.NoError(t, err)
	require.True(t, won)

	got, err := repo.OpenLoginChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)
}
