// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package login_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/audit"
	"github.com/mwaldner/veriflow/internal/services/login"
	"github.com/mwaldner/veriflow/internal/services/vault"
	"github.com/mwaldner/veriflow/internal/testutil"
	"github.com/mwaldner/veriflow/internal/workflow"
)

type loginFixture struct {
	db       *sqlx.DB
	repo     *repository.Repository
	svc      *login.Service
	notifier *testutil.FakeNotifier
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	db, repo := testutil.NewTestDB(t)
	auditSvc := audit.NewService(repo)
	notifier := &testutil.FakeNotifier{}
	svc := login.NewService(repo, vault.NewService(repo, auditSvc), testutil.NewTestSessions(t), notifier, auditSvc)
	return &loginFixture{db: db, repo: repo, svc: svc, notifier: notifier}
}

func TestBeginAndVerify(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, f.repo, "alice@example.com", models.RoleUser, models.StatusApproved)

	challenge, err := f.svc.Begin(ctx, user.ID, "test")
	require.NoError(t, err)
	assert.Equal(t, models.ChallengePending, challenge.State)
	assert.Equal(t, user.Email, challenge.DeliveredTo)

	code := f.notifier.LastSecret("login_code", user.ID)
	require.NotEmpty(t, code)

	token, err := f.svc.Verify(ctx, challenge.ID, code, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := f.repo.GetLoginChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeCompleted, got.State)
}

func TestBegin_RejectsUnapprovedAndDeleted(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	pending := testutil.NewTestUser(t, f.repo, "pending@example.com", models.RoleUser, models.StatusPending)
	_, err := f.svc.Begin(ctx, pending.ID, "test")
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	admin := testutil.NewTestAdmin(t, f.repo, "admin@example.com")
	gone := testutil.NewTestUser(t, f.repo, "gone@example.com", models.RoleUser, models.StatusApproved)
	_, err = f.repo.SoftDeleteUser(ctx, gone.ID, admin.ID)
	require.NoError(t, err)

	_, err = f.svc.Begin(ctx, gone.ID, "test")
	assert.ErrorIs(t, err, workflow.ErrPreconditionFailed)

	_, err = f.svc.Begin(ctx, 4242, "test")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestVerify_WrongCodeCountsAttempt(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, f.repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	challenge, err := f.svc.Begin(ctx, user.ID, "test")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, challenge.ID, "wrong1", "test")
	assert.ErrorIs(t, err, workflow.ErrInvalidToken)
	_, err = f.svc.Verify(ctx, challenge.ID, "wrong2", "test")
	assert.ErrorIs(t, err, workflow.ErrInvalidToken)

	got, err := f.repo.GetLoginChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Attempts)
	assert.Equal(t, models.ChallengePending, got.State)

	// The real code still works after failed attempts.
	code := f.notifier.LastSecret("login_code", user.ID)
	_, err = f.svc.Verify(ctx, challenge.ID, code, "test")
	require.NoError(t, err)
}

func TestVerify_CompletedChallengeConflicts(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, f.repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	challenge, err := f.svc.Begin(ctx, user.ID, "test")
	require.NoError(t, err)

	code := f.notifier.LastSecret("login_code", user.ID)
	_, err = f.svc.Verify(ctx, challenge.ID, code, "test")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, challenge.ID, code, "test")
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

func TestVerify_LazyExpiry(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, f.repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	challenge, err := f.svc.Begin(ctx, user.ID, "test")
	require.NoError(t, err)

	_, err = f.db.ExecContext(ctx,
		`UPDATE login_challenges SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), challenge.ID)
	require.NoError(t, err)

	code := f.notifier.LastSecret("login_code", user.ID)
	_, err = f.svc.Verify(ctx, challenge.ID, code, "test")
	assert.ErrorIs(t, err, workflow.ErrTokenExpired)

	// The challenge was resolved in place, not left for the sweeper.
	got, err := f.repo.GetLoginChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeExpired, got.State)
}

func TestResend_SupersedesAndCooldown(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, f.repo, "alice@example.com", models.RoleUser, models.StatusApproved)
	challenge, err := f.svc.Begin(ctx, user.ID, "test")
	require.NoError(t, err)
	first := f.notifier.LastSecret("login_code", user.ID)

	// Within the cooldown window resending is refused.
	err = f.svc.Resend(ctx, challenge.ID, "test")
	assert.ErrorIs(t, err, workflow.ErrCooldownActive)

	cooldown := policy.ForPurpose(policy.PurposeLoginOTP).ResendCooldown
	_, err = f.db.ExecContext(ctx,
		`UPDATE verification_tokens SET issued_at = ? WHERE user_id = ?`,
		time.Now().UTC().Add(-cooldown-time.Second), user.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Resend(ctx, challenge.ID, "test"))
	second := f.notifier.LastSecret("login_code", user.ID)
	require.NotEqual(t, first, second)

	// The superseded code is dead; the fresh one completes the login.
	_, err = f.svc.Verify(ctx, challenge.ID, first, "test")
	assert.ErrorIs(t, err, workflow.ErrTokenConsumed)

	_, err = f.svc.Verify(ctx, challenge.ID, second, "test")
	require.NoError(t, err)
}
