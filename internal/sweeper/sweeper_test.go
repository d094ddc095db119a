// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/audit"
	"github.com/mwaldner/veriflow/internal/services/auth"
	"github.com/mwaldner/veriflow/internal/services/deletion"
	"github.com/mwaldner/veriflow/internal/services/login"
	"github.com/mwaldner/veriflow/internal/services/transfer"
	"github.com/mwaldner/veriflow/internal/services/vault"
	"github.com/mwaldner/veriflow/internal/sweeper"
	"github.com/mwaldner/veriflow/internal/testutil"
)

type sweepFixture struct {
	db        *sqlx.DB
	repo      *repository.Repository
	logins    *login.Service
	transfers *transfer.Service
	deletions *deletion.Service
	sweeper   *sweeper.Sweeper
	notifier  *testutil.FakeNotifier
	admin     *models.User
	target    *models.User
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db, repo := testutil.NewTestDB(t)
	auditSvc := audit.NewService(repo)
	vaultSvc := vault.NewService(repo, auditSvc)
	authSvc := auth.NewService(repo)
	notifier := &testutil.FakeNotifier{}

	logins := login.NewService(repo, vaultSvc, testutil.NewTestSessions(t), notifier, auditSvc)
	transfers := transfer.NewService(repo, vaultSvc, authSvc, notifier, auditSvc)
	deletions := deletion.NewService(repo, vaultSvc, authSvc, notifier, auditSvc)

	return &sweepFixture{
		db:        db,
		repo:      repo,
		logins:    logins,
		transfers: transfers,
		deletions: deletions,
		sweeper:   sweeper.New(repo, logins, transfers, deletions, time.Minute),
		notifier:  notifier,
		admin:     testutil.NewTestAdmin(t, repo, "admin@example.com"),
		target:    testutil.NewTestUser(t, repo, "target@example.com", models.RoleUser, models.StatusApproved),
	}
}

func (f *sweepFixture) age(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := f.db.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

func TestSweep_ExpiresLoginChallenges(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	stale, err := f.logins.Begin(ctx, f.target.ID, "test")
	require.NoError(t, err)
	fresh, err := f.logins.Begin(ctx, f.admin.ID, "test")
	require.NoError(t, err)

	f.age(t, `UPDATE login_challenges SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), stale.ID)

	f.sweeper.Sweep(ctx)

	got, err := f.repo.GetLoginChallenge(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeExpired, got.State)

	got, err = f.repo.GetLoginChallenge(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChallengePending, got.State)
}

func TestSweep_ExpiresTransferPastDeadline(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	tr, err := f.transfers.Initiate(ctx, f.admin.ID, f.target.ID, testutil.TestPassword, "test")
	require.NoError(t, err)

	f.age(t, `UPDATE admin_transfers SET deadline_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), tr.ID)

	f.sweeper.Sweep(ctx)

	got, err := f.repo.GetTransferByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferExpired, got.State)

	admin, err := f.repo.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, admin.ID)
}

func TestSweep_CompletesUnlockedTransfer(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	tr, err := f.transfers.Initiate(ctx, f.admin.ID, f.target.ID, testutil.TestPassword, "test")
	require.NoError(t, err)

	oldSecret := f.notifier.LastSecret("transfer_confirm", f.admin.ID)
	_, err = f.transfers.Confirm(ctx, tr.ID, oldSecret, transfer.SideOld, "test")
	require.NoError(t, err)
	newSecret := f.notifier.LastSecret("transfer_confirm", f.target.ID)
	_, err = f.transfers.Confirm(ctx, tr.ID, newSecret, transfer.SideNew, "test")
	require.NoError(t, err)

	// First pass: lock still holds.
	f.sweeper.Sweep(ctx)
	got, err := f.repo.GetTransferByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.TransferCompleted, got.State)

	f.age(t, `UPDATE admin_transfers SET completes_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Second), tr.ID)

	f.sweeper.Sweep(ctx)
	got, err = f.repo.GetTransferByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransferCompleted, got.State)

	admin, err := f.repo.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.target.ID, admin.ID)
}

func TestSweep_AutoCancelsUnansweredDeletion(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	d, err := f.deletions.Initiate(ctx, f.admin.ID, f.target.ID,
		testutil.TestPassword, deletion.ConfirmText, f.admin.Email, "inactive", "test")
	require.NoError(t, err)

	f.age(t, `UPDATE deletion_workflows SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), d.ID)

	f.sweeper.Sweep(ctx)

	got, err := f.repo.GetDeletionByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeletionCancelled, got.State)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, deletion.AutoCancelReason, *got.CancelReason)

	// Automatic cancellation is tagged apart from an admin cancel.
	entries, err := f.repo.QueryAuditLog(ctx, repository.AuditFilter{Action: "deletion_auto_cancelled"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The target is untouched.
	target, err := f.repo.GetUserByID(ctx, f.target.ID)
	require.NoError(t, err)
	assert.False(t, target.IsDeleted)
}

func TestSweep_ExpiresStuckVerifiedDeletion(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	d, err := f.deletions.Initiate(ctx, f.admin.ID, f.target.ID,
		testutil.TestPassword, deletion.ConfirmText, f.admin.Email, "inactive", "test")
	require.NoError(t, err)

	won, err := f.repo.TransitionDeletion(ctx, d.ID, models.DeletionPending, models.DeletionVerified, true, nil)
	require.NoError(t, err)
	require.True(t, won)

	f.age(t, `UPDATE deletion_workflows SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), d.ID)

	f.sweeper.Sweep(ctx)

	got, err := f.repo.GetDeletionByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeletionExpired, got.State)
}

func TestSweep_PurgesExpiredTokens(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	_, err := f.logins.Begin(ctx, f.target.ID, "test")
	require.NoError(t, err)

	f.age(t, `UPDATE verification_tokens SET expires_at = ? WHERE user_id = ?`,
		time.Now().UTC().Add(-time.Hour), f.target.ID)

	f.sweeper.Sweep(ctx)

	var count int
	err = f.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM verification_tokens WHERE user_id = ?`, f.target.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	f := newSweepFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
