// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/mwaldner/veriflow/internal/database"
	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/session"
)

// TestPassword is the plaintext behind every fixture user's hash.
const TestPassword = "fixture-password-123"

var (
	hashOnce     sync.Once
	passwordHash string
)

// testPasswordHash hashes TestPassword once per test binary. MinCost
// keeps the suite fast; cost is irrelevant to correctness here.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("failed to hash test password: %v", err)
		}
		passwordHash = string(hash)
	})
	return passwordHash
}

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates a user with the given email, role, and status.
func NewTestUser(t *testing.T, repo *repository.Repository, email, role, status string) *models.User {
	t.Helper()
	user := &models.User{
		Email:         email,
		PasswordHash:  testPasswordHash(t),
		Role:          role,
		Status:        status,
		EmailVerified: true,
	}
	err := repo.CreateUser(context.Background(), user)
	require.NoError(t, err)
	return user
}

// NewTestAdmin creates an approved admin user.
func NewTestAdmin(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	return NewTestUser(t, repo, email, models.RoleAdmin, models.StatusApproved)
}

// NewTestSessions creates a session service with fixed test keys.
func NewTestSessions(t *testing.T) *session.Service {
	t.Helper()
	hashKey := "6368616e676520746869732070617373776f726420746f206120736563726574"
	svc, err := session.NewService(hashKey, "", time.Hour)
	require.NoError(t, err)
	return svc
}

// SentMessage records one notification delivered to the fake notifier.
type SentMessage struct {
	Kind    string // "login_code", "transfer_confirm", "deletion_ack", "outcome"
	UserID  int64
	Email   string
	Purpose policy.Purpose
	Secret  string
	Outcome string
}

// FakeNotifier captures outbound messages instead of sending them.
// Satisfies the Notifier interfaces of the login, transfer, and deletion
// services.
type FakeNotifier struct {
	mu   sync.Mutex
	Sent []SentMessage
}

func (f *FakeNotifier) SendLoginCode(_ context.Context, user *models.User, code string) error {
	f.record(SentMessage{Kind: "login_code", UserID: user.ID, Email: user.Email, Secret: code})
	return nil
}

func (f *FakeNotifier) SendTransferConfirm(_ context.Context, user *models.User, purpose policy.Purpose, _ string, secret, _ string) error {
	f.record(SentMessage{Kind: "transfer_confirm", UserID: user.ID, Email: user.Email, Purpose: purpose, Secret: secret})
	return nil
}

func (f *FakeNotifier) SendDeletionAck(_ context.Context, user *models.User, secret string) error {
	f.record(SentMessage{Kind: "deletion_ack", UserID: user.ID, Email: user.Email, Secret: secret})
	return nil
}

func (f *FakeNotifier) SendOutcome(_ context.Context, user *models.User, outcome string) error {
	f.record(SentMessage{Kind: "outcome", UserID: user.ID, Email: user.Email, Outcome: outcome})
	return nil
}

func (f *FakeNotifier) record(msg SentMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, msg)
}

// LastSecret returns the most recently captured secret for a user and kind.
func (f *FakeNotifier) LastSecret(kind string, userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Sent) - 1; i >= 0; i-- {
		if f.Sent[i].Kind == kind && f.Sent[i].UserID == userID {
			return f.Sent[i].Secret
		}
	}
	return ""
}

// Outcomes returns all captured outcome names for a user.
func (f *FakeNotifier) Outcomes(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.Sent {
		if m.Kind == "outcome" && m.UserID == userID {
			out = append(out, m.Outcome)
		}
	}
	return out
}
