// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package auth verifies passwords for re-authentication and bootstraps
// the initial administrator. Credential lifecycle (registration flows,
// password policies) lives outside this engine.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/workflow"
)

// dummyHash is used for constant-time verification to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

type Service struct {
	repo *repository.Repository
}

func NewService(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// VerifyPassword re-authenticates a user by password. Always performs a
// bcrypt comparison, even for unknown users, so response time does not
// reveal account existence.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, plaintext string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plaintext))
			return workflow.ErrUnauthorized
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext)); err != nil {
		slog.Warn("reauth_failed", "user_id", userID)
		return workflow.ErrUnauthorized
	}
	return nil
}

// RequireAdmin loads a user and checks they currently hold the admin role.
func (s *Service) RequireAdmin(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsAdmin() || user.IsDeleted {
		return nil, workflow.ErrUnauthorized
	}
	return user, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// EnsureAdmin creates the initial administrator if no user currently
// holds the admin role. Satisfies the one-admin invariant from first
// startup onwards.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	count, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Email:         email,
		PasswordHash:  hash,
		Role:          models.RoleAdmin,
		Status:        models.StatusApproved,
		EmailVerified: true,
	}
	if err := s.repo.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin_bootstrapped", "user_id", admin.ID, "email", email)
	return nil
}
