// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/testutil"
)

func appendEntry(t *testing.T, repo *repository.Repository, action, category string, actorID, targetID *int64) *models.AuditEntry {
	t.Helper()
	e := &models.AuditEntry{
		Action:       action,
		Category:     category,
		ActorUserID:  actorID,
		TargetUserID: targetID,
		Detail:       "{}",
		Origin:       "127.0.0.1",
	}
	require.NoError(t, repo.AppendAuditEntry(context.Background(), e))
	return e
}

func TestAppendAuditEntry_AssignsIDAndTimestamp(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	e := appendEntry(t, repo, "login_success", models.AuditAuth, nil, nil)

	assert.NotZero(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestQueryAuditLog_Filters(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	admin := testutil.NewTestAdmin(t, repo, "admin@example.com")
	alice := testutil.NewTestUser(t, repo, "alice@example.com", models.RoleUser, models.StatusApproved)

	appendEntry(t, repo, "login_challenge_issued", models.AuditAuth, &alice.ID, nil)
	appendEntry(t, repo, "transfer_initiated", models.AuditSecurity, &admin.ID, &alice.ID)
	appendEntry(t, repo, "transfer_cancelled", models.AuditSecurity, &admin.ID, &alice.ID)

	got, err := repo.QueryAuditLog(ctx, repository.AuditFilter{Category: models.AuditSecurity}, 50, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.QueryAuditLog(ctx, repository.AuditFilter{Action: "transfer_initiated"}, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].ActorUserID)
	assert.Equal(t, admin.ID, *got[0].ActorUserID)

	got, err = repo.QueryAuditLog(ctx, repository.AuditFilter{ActorID: alice.ID}, 50, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestQueryAuditLog_ReverseChronological(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	first := appendEntry(t, repo, "a", models.AuditAuth, nil, nil)
	second := appendEntry(t, repo, "b", models.AuditAuth, nil, nil)

	got, err := repo.QueryAuditLog(ctx, repository.AuditFilter{}, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)

	// Paging
	got, err = repo.QueryAuditLog(ctx, repository.AuditFilter{}, 1, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
}
