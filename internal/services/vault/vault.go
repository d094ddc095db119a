// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package vault generates, stores, and validates single-use verification
// secrets. Secrets are purpose-bound and subject-bound; only their
// SHA-256 hash is persisted. Issuing a new secret invalidates any prior
// unconsumed one of the same subject and purpose, so a resend leaves a
// single active secret behind.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/policy"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/audit"
	"github.com/mwaldner/veriflow/internal/workflow"
)

const (
	// CodeLength is the number of digits in human-typed numeric codes.
	CodeLength = 6
	// TokenLength is the number of random bytes for opaque link tokens.
	TokenLength = 32
)

type Service struct {
	repo  *repository.Repository
	audit *audit.Service
}

func NewService(repo *repository.Repository, auditSvc *audit.Service) *Service {
	return &Service{repo: repo, audit: auditSvc}
}

// Issue generates a fresh secret for the subject and purpose, persists
// its hash, and invalidates any prior unconsumed secret of the same
// pair. Returns the plaintext secret (for delivery) and the stored
// token record.
func (s *Service) Issue(ctx context.Context, userID int64, purpose policy.Purpose, origin string) (string, *models.VerificationToken, error) {
	if !purpose.Valid() {
		return "", nil, fmt.Errorf("issue: %w", workflow.ErrPreconditionFailed)
	}

	secret, err := generateSecret(purpose)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	if err := s.repo.InvalidateTokens(ctx, userID, purpose); err != nil {
		return "", nil, fmt.Errorf("failed to invalidate prior tokens: %w", err)
	}

	now := time.Now().UTC()
	token := &models.VerificationToken{
		UserID:     userID,
		Purpose:    purpose,
		SecretHash: HashSecret(secret),
		IssuedAt:   now,
		ExpiresAt:  now.Add(policy.ForPurpose(purpose).TokenTTL),
	}
	if err := s.repo.CreateVerificationToken(ctx, token); err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "token_issued",
		Category:     categoryFor(purpose),
		TargetUserID: &token.UserID,
		Detail:       string(purpose),
		Origin:       origin,
	})

	return secret, token, nil
}

// Consume validates and atomically spends a subject-bound secret.
// Purpose and subject must match the stored token; a token issued for a
// different purpose or party fails as invalid, never silently succeeds.
func (s *Service) Consume(ctx context.Context, userID int64, purpose policy.Purpose, secret, origin string) error {
	_, err := s.consumeHash(ctx, HashSecret(secret), purpose, &userID, origin)
	return err
}

// ConsumeBySecret spends a secret whose subject is unknown to the
// caller, returning the stored token so the caller learns the subject.
// Used for link tokens that themselves identify the target user.
func (s *Service) ConsumeBySecret(ctx context.Context, purpose policy.Purpose, secret, origin string) (*models.VerificationToken, error) {
	return s.consumeHash(ctx, HashSecret(secret), purpose, nil, origin)
}

func (s *Service) consumeHash(ctx context.Context, hash string, purpose policy.Purpose, userID *int64, origin string) (*models.VerificationToken, error) {
	token, err := s.lookup(ctx, hash, purpose, userID)
	if err != nil {
		s.recordFailure(ctx, purpose, userID, origin, err)
		return nil, err
	}

	// Consumed is checked before expiry so a double consume is reported
	// as such even after the secret aged out.
	if token.Consumed {
		s.recordFailure(ctx, purpose, &token.UserID, origin, workflow.ErrTokenConsumed)
		return nil, fmt.Errorf("consume: %w", workflow.ErrTokenConsumed)
	}
	if !time.Now().UTC().Before(token.ExpiresAt) {
		s.recordFailure(ctx, purpose, &token.UserID, origin, workflow.ErrTokenExpired)
		return nil, fmt.Errorf("consume: %w", workflow.ErrTokenExpired)
	}

	won, err := s.repo.ConsumeToken(ctx, token.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	if !won {
		// A concurrent caller spent it between our read and the update.
		s.recordFailure(ctx, purpose, &token.UserID, origin, workflow.ErrTokenConsumed)
		return nil, fmt.Errorf("consume: %w", workflow.ErrTokenConsumed)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "token_consumed",
		Category:     categoryFor(purpose),
		TargetUserID: &token.UserID,
		Detail:       string(purpose),
		Origin:       origin,
	})
	token.Consumed = true
	return token, nil
}

func (s *Service) lookup(ctx context.Context, hash string, purpose policy.Purpose, userID *int64) (*models.VerificationToken, error) {
	var token *models.VerificationToken
	var err error
	if userID != nil {
		token, err = s.repo.GetTokenByHash(ctx, hash, purpose, *userID)
	} else {
		token, err = s.repo.GetTokenByHashAnySubject(ctx, hash, purpose)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("consume: %w", workflow.ErrInvalidToken)
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	return token, nil
}

// Resend re-issues a secret for the subject and purpose, unless the
// cooldown window since the last issuance has not elapsed yet.
func (s *Service) Resend(ctx context.Context, userID int64, purpose policy.Purpose, origin string) (string, *models.VerificationToken, error) {
	last, err := s.repo.LatestToken(ctx, userID, purpose)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", nil, fmt.Errorf("failed to look up last token: %w", err)
	}
	if last != nil {
		cooldown := policy.ForPurpose(purpose).ResendCooldown
		if time.Now().UTC().Before(last.IssuedAt.Add(cooldown)) {
			return "", nil, fmt.Errorf("resend: %w", workflow.ErrCooldownActive)
		}
	}
	return s.Issue(ctx, userID, purpose, origin)
}

func (s *Service) recordFailure(ctx context.Context, purpose policy.Purpose, userID *int64, origin string, cause error) {
	s.audit.Record(ctx, models.AuditEntry{
		Action:       "token_consume_failed",
		Category:     categoryFor(purpose),
		TargetUserID: userID,
		Detail:       fmt.Sprintf("%s: %v", purpose, cause),
		Origin:       origin,
	})
}

// HashSecret computes the SHA-256 hash of a secret for storage/lookup.
func HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// digits excludes nothing: codes are typed from a message, not transcribed
// from handwriting.
const digits = "0123456789"

// generateSecret produces a 6-digit numeric code for human-typed
// purposes and a high-entropy hex token otherwise.
func generateSecret(purpose policy.Purpose) (string, error) {
	if purpose.Numeric() {
		buf := make([]byte, CodeLength)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i := range buf {
			buf[i] = digits[int(buf[i])%len(digits)]
		}
		return string(buf), nil
	}

	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// categoryFor maps token purposes to audit categories: login and reset
// secrets are authentication events, the rest guard privileged actions.
func categoryFor(purpose policy.Purpose) string {
	switch purpose {
	case policy.PurposeLoginOTP, policy.PurposePasswordReset:
		return models.AuditAuth
	default:
		return models.AuditSecurity
	}
}
