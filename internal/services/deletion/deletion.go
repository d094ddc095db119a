// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package deletion drives target-acknowledged soft deletion. An admin
// initiates with typed guard confirmations, the target acknowledges via
// an emailed token within 30 minutes, and the account is then marked
// deleted but retained. No acknowledgement means automatic cancellation
// and an untouched account.
package deletion

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
	"github.com/mwaldner/veriflow/internal/services/auth"
	"github.com/mwaldner/veriflow/internal/services/vault"
	"github.com/mwaldner/veriflow/internal/workflow"
)

// ConfirmText is the literal phrase an admin must type to initiate a
// deletion. Validated server-side regardless of any client check.
const ConfirmText = "DELETE"

// AutoCancelReason marks sweeper-driven cancellation apart from
// admin-initiated one.
const AutoCancelReason = "auto-expired"

// Notifier delivers the acknowledgement link and outcome messages.
type Notifier interface {
	SendDeletionAck(ctx context.Context, user *models.User, secret string) error
	SendOutcome(ctx context.Context, user *models.User, outcome string) error
}

type Service struct {
	repo     *repository.Repository
	vault    *vault.Service
	auth     *auth.Service
	notifier Notifier
	audit    *audit.Service
}

func NewService(repo *repository.Repository, vaultSvc *vault.Service, authSvc *auth.Service, notifier Notifier, auditSvc *audit.Service) *Service {
	return &Service{
		repo:     repo,
		vault:    vaultSvc,
		auth:     authSvc,
		notifier: notifier,
		audit:    auditSvc,
	}
}

// Initiate opens a deletion workflow. The admin re-authenticates by
// password and must type the confirmation phrase plus their own email;
// guard failures are reported specifically since they are self-directed
// safety checks, not secrets.
func (s *Service) Initiate(ctx context.Context, adminID, targetUserID int64, reauthPassword, confirmText, confirmEmail, reason, origin string) (*models.DeletionWorkflow, error) {
	admin, err := s.auth.RequireAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if confirmText != ConfirmText {
		return nil, fmt.Errorf("confirmation text mismatch: %w", workflow.ErrPreconditionFailed)
	}
	if confirmEmail != admin.Email {
		return nil, fmt.Errorf("confirmation email mismatch: %w", workflow.ErrPreconditionFailed)
	}
	if err := s.auth.VerifyPassword(ctx, adminID, reauthPassword); err != nil {
		return nil, err
	}

	target, err := s.repo.GetUserByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("initiate deletion: %w", workflow.ErrPreconditionFailed)
		}
		return nil, fmt.Errorf("failed to get target user: %w", err)
	}
	if target.ID == admin.ID || target.IsDeleted {
		return nil, fmt.Errorf("initiate deletion: %w", workflow.ErrPreconditionFailed)
	}
	if _, err := s.repo.GetOpenDeletionForTarget(ctx, target.ID); err == nil {
		return nil, fmt.Errorf("initiate deletion: %w", workflow.ErrPreconditionFailed)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check open deletions: %w", err)
	}

	now := time.Now().UTC()
	d := &models.DeletionWorkflow{
		ID:             uuid.NewString(),
		TargetUserID:   target.ID,
		RequestedBy:    admin.ID,
		State:          models.DeletionPending,
		AdminConfirmed: true,
		Reason:         reason,
		CreatedAt:      now,
		ExpiresAt:      now.Add(policy.ForKind(policy.KindDeletion).Deadline),
	}
	if err := s.repo.CreateDeletion(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create deletion workflow: %w", err)
	}

	secret, _, err := s.vault.Issue(ctx, target.ID, policy.PurposeDeletionAck, origin)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.SendDeletionAck(ctx, target, secret); err != nil {
		slog.Error("deletion_notify_failed", "workflow_id", d.ID, "error", err)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "deletion_initiated",
		Category:     models.AuditData,
		ActorUserID:  &admin.ID,
		TargetUserID: &target.ID,
		Detail:       fmt.Sprintf("%s: %s", d.ID, reason),
		Origin:       origin,
	})

	return d, nil
}

// ConfirmByTarget spends the acknowledgement token, marks the workflow
// verified, and executes the soft delete. The verified state is held
// only for the instant between the two compare-and-set updates; any
// race with a sweeper cancellation resolves to exactly one winner.
func (s *Service) ConfirmByTarget(ctx context.Context, secret, origin string) (*models.DeletionWorkflow, error) {
	token, err := s.vault.ConsumeBySecret(ctx, policy.PurposeDeletionAck, secret, origin)
	if err != nil {
		return nil, err
	}

	d, err := s.repo.GetOpenDeletionForTarget(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("confirm deletion: %w", workflow.ErrConflict)
		}
		return nil, fmt.Errorf("failed to get deletion workflow: %w", err)
	}
	if !time.Now().UTC().Before(d.ExpiresAt) {
		return nil, fmt.Errorf("confirm deletion: %w", workflow.ErrTokenExpired)
	}

	won, err := s.repo.TransitionDeletion(ctx, d.ID, models.DeletionPending, models.DeletionVerified, true, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to verify deletion: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("confirm deletion: %w", workflow.ErrConflict)
	}
	s.audit.Record(ctx, models.AuditEntry{
		Action:       "deletion_target_confirmed",
		Category:     models.AuditData,
		ActorUserID:  &d.TargetUserID,
		TargetUserID: &d.TargetUserID,
		Detail:       d.ID,
		Origin:       origin,
	})

	return s.complete(ctx, d, origin)
}

// complete executes the soft delete while the workflow is exactly in
// the verified state.
func (s *Service) complete(ctx context.Context, d *models.DeletionWorkflow, origin string) (*models.DeletionWorkflow, error) {
	won, err := s.repo.TransitionDeletion(ctx, d.ID, models.DeletionVerified, models.DeletionCompleted, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to complete deletion: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("complete deletion: %w", workflow.ErrConflict)
	}

	deleted, err := s.repo.SoftDeleteUser(ctx, d.TargetUserID, d.RequestedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to soft-delete user: %w", err)
	}
	if !deleted {
		slog.Warn("deletion_target_already_deleted", "workflow_id", d.ID, "user_id", d.TargetUserID)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "deletion_completed",
		Category:     models.AuditData,
		ActorUserID:  &d.RequestedBy,
		TargetUserID: &d.TargetUserID,
		Detail:       d.ID,
		Origin:       origin,
	})
	slog.Info("deletion_completed", "workflow_id", d.ID, "user_id", d.TargetUserID)

	if target, err := s.repo.GetUserByID(ctx, d.TargetUserID); err == nil {
		if err := s.notifier.SendOutcome(ctx, target, "deletion_completed"); err != nil {
			slog.Error("outcome_notify_failed", "workflow_id", d.ID, "error", err)
		}
	}

	return s.repo.GetDeletionByID(ctx, d.ID)
}

// Cancel lets an admin withdraw a pending deletion before the target
// responds. Losing the race against confirmation or expiry returns a
// conflict.
func (s *Service) Cancel(ctx context.Context, deletionID string, adminID int64, origin string) (*models.DeletionWorkflow, error) {
	admin, err := s.auth.RequireAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}

	d, err := s.repo.GetDeletionByID(ctx, deletionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("cancel deletion: %w", workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get deletion workflow: %w", err)
	}

	reason := "cancelled by administrator"
	won, err := s.repo.TransitionDeletion(ctx, d.ID, models.DeletionPending, models.DeletionCancelled, false, &reason)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel deletion: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("cancel deletion: %w", workflow.ErrConflict)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "deletion_cancelled",
		Category:     models.AuditData,
		ActorUserID:  &admin.ID,
		TargetUserID: &d.TargetUserID,
		Detail:       d.ID,
		Origin:       origin,
	})
	if target, err := s.repo.GetUserByID(ctx, d.TargetUserID); err == nil {
		if err := s.notifier.SendOutcome(ctx, target, "deletion_cancelled"); err != nil {
			slog.Error("outcome_notify_failed", "workflow_id", d.ID, "error", err)
		}
	}

	return s.repo.GetDeletionByID(ctx, d.ID)
}

// ListPending returns all non-terminal deletion workflows.
func (s *Service) ListPending(ctx context.Context) ([]models.DeletionWorkflow, error) {
	return s.repo.ListOpenDeletions(ctx)
}

// AutoCancel is the sweeper's path for a workflow whose response window
// closed without target acknowledgement. The target user is left
// untouched; the audit action is tagged apart from admin cancellation.
func (s *Service) AutoCancel(ctx context.Context, d *models.DeletionWorkflow) error {
	reason := AutoCancelReason
	won, err := s.repo.TransitionDeletion(ctx, d.ID, models.DeletionPending, models.DeletionCancelled, false, &reason)
	if err != nil {
		return fmt.Errorf("failed to auto-cancel deletion: %w", err)
	}
	if !won {
		return nil
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "deletion_auto_cancelled",
		Category:     models.AuditData,
		TargetUserID: &d.TargetUserID,
		Detail:       d.ID,
	})
	return nil
}

// ExpireVerified terminates a workflow stuck in verified past its
// window, e.g. after a crash between acknowledgement and completion.
func (s *Service) ExpireVerified(ctx context.Context, d *models.DeletionWorkflow) error {
	won, err := s.repo.TransitionDeletion(ctx, d.ID, models.DeletionVerified, models.DeletionExpired, false, nil)
	if err != nil {
		return fmt.Errorf("failed to expire deletion: %w", err)
	}
	if !won {
		return nil
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "deletion_expired",
		Category:     models.AuditData,
		TargetUserID: &d.TargetUserID,
		Detail:       d.ID,
	})
	return nil
}
