// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package login drives the login-OTP workflow: a challenge is opened, a
// numeric code is mailed, and a full session token is only minted once
// the code is consumed. Invalid attempts are counted and audited but do
// not advance the challenge state.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/audit"
	"github.com/mwaldner/veriflow/internal/services/session"
	"github.com/mwaldner/veriflow/internal/services/vault"
	"github.com/mwaldner/veriflow/internal/workflow"
)

// Notifier delivers the sign-in code. Failures are logged, not surfaced.
type Notifier interface {
	SendLoginCode(ctx context.Context, user *models.User, code string) error
}

type Service struct {
	repo     *repository.Repository
	vault    *vault.Service
	sessions *session.Service
	notifier Notifier
	audit    *audit.Service
}

func NewService(repo *repository.Repository, vaultSvc *vault.Service, sessions *session.Service, notifier Notifier, auditSvc *audit.Service) *Service {
	return &Service{
		repo:     repo,
		vault:    vaultSvc,
		sessions: sessions,
		notifier: notifier,
		audit:    auditSvc,
	}
}

// Begin opens a login challenge for the user and mails the code.
func (s *Service) Begin(ctx context.Context, userID int64, origin string) (*models.LoginChallenge, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("begin login: %w", workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsDeleted || user.Status != models.StatusApproved {
		return nil, fmt.Errorf("begin login: %w", workflow.ErrPreconditionFailed)
	}

	now := time.Now().UTC()
	challenge := &models.LoginChallenge{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		State:       models.ChallengePending,
		DeliveredTo: user.Email,
		CreatedAt:   now,
		ExpiresAt:   now.Add(policy.ForKind(policy.KindLoginOTP).Deadline),
	}
	if err := s.repo.CreateLoginChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	code, _, err := s.vault.Issue(ctx, user.ID, policy.PurposeLoginOTP, origin)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendLoginCode(ctx, user, code); err != nil {
		slog.Error("login_code_delivery_failed", "challenge_id", challenge.ID, "error", err)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "login_challenge_issued",
		Category:     models.AuditAuth,
		TargetUserID: &user.ID,
		Detail:       challenge.ID,
		Origin:       origin,
	})

	return challenge, nil
}

// Verify consumes the code for a challenge. On success the challenge
// completes and a signed session token is returned. A wrong or stale
// code leaves the challenge pending, bumps the attempt counter, and is
// audited individually.
func (s *Service) Verify(ctx context.Context, challengeID, code, origin string) (string, error) {
	challenge, err := s.repo.GetLoginChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("verify login: %w", workflow.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get challenge: %w", err)
	}
	if challenge.Terminal() {
		return "", fmt.Errorf("verify login: %w", workflow.ErrConflict)
	}
	if !time.Now().UTC().Before(challenge.ExpiresAt) {
		// Lazy expiry: resolve now instead of waiting for the sweeper.
		if err := s.Expire(ctx, challenge); err != nil {
			return "", err
		}
		return "", fmt.Errorf("verify login: %w", workflow.ErrTokenExpired)
	}

	if err := s.vault.Consume(ctx, challenge.UserID, policy.PurposeLoginOTP, code, origin); err != nil {
		if cerr := s.repo.IncrementChallengeAttempts(ctx, challengeID); cerr != nil {
			slog.Error("attempt_count_failed", "challenge_id", challengeID, "error", cerr)
		}
		s.audit.Record(ctx, models.AuditEntry{
			Action:       "login_challenge_failed",
			Category:     models.AuditAuth,
			TargetUserID: &challenge.UserID,
			Detail:       challenge.ID,
			Origin:       origin,
		})
		return "", err
	}

	won, err := s.repo.TransitionLoginChallenge(ctx, challengeID, models.ChallengeCompleted)
	if err != nil {
		return "", fmt.Errorf("failed to complete challenge: %w", err)
	}
	if !won {
		return "", fmt.Errorf("verify login: %w", workflow.ErrConflict)
	}

	user, err := s.repo.GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	token, err := s.sessions.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return "", err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "login_challenge_completed",
		Category:     models.AuditAuth,
		ActorUserID:  &user.ID,
		TargetUserID: &user.ID,
		Detail:       challenge.ID,
		Origin:       origin,
	})
	slog.Info("login_success", "user_id", user.ID, "challenge_id", challenge.ID)

	return token, nil
}

// Resend re-issues the code for a pending challenge, subject to the
// resend cooldown.
func (s *Service) Resend(ctx context.Context, challengeID, origin string) error {
	challenge, err := s.repo.GetLoginChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("resend login: %w", workflow.ErrNotFound)
		}
		return fmt.Errorf("failed to get challenge: %w", err)
	}
	if challenge.Terminal() || !time.Now().UTC().Before(challenge.ExpiresAt) {
		return fmt.Errorf("resend login: %w", workflow.ErrConflict)
	}

	code, _, err := s.vault.Resend(ctx, challenge.UserID, policy.PurposeLoginOTP, origin)
	if err != nil {
		return err
	}

	user, err := s.repo.GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.notifier.SendLoginCode(ctx, user, code); err != nil {
		slog.Error("login_code_delivery_failed", "challenge_id", challenge.ID, "error", err)
	}
	return nil
}

// Expire terminates a challenge past its deadline. Called lazily from
// Verify and by the sweeper; the compare-and-set makes the two safe to
// race, only the winner writes the audit entry.
func (s *Service) Expire(ctx context.Context, challenge *models.LoginChallenge) error {
	won, err := s.repo.TransitionLoginChallenge(ctx, challenge.ID, models.ChallengeExpired)
	if err != nil {
		return fmt.Errorf("failed to expire challenge: %w", err)
	}
	if !won {
		return nil
	}
	s.audit.Record(ctx, models.AuditEntry{
		Action:       "login_challenge_expired",
		Category:     models.AuditAuth,
		TargetUserID: &challenge.UserID,
		Detail:       challenge.ID,
	})
	return nil
}
