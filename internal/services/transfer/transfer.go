// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package transfer drives the dual-confirmation admin-role handover.
// Both the outgoing and the incoming admin confirm with purpose-bound
// tokens, in either order; completion additionally waits out a 48 hour
// lock and swaps the roles in the same transaction that commits the
// terminal state.
package transfer

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

// Side identifies which party is confirming.
type Side string

const (
	SideOld Side = "old"
	SideNew Side = "new"
)

// Notifier delivers confirmation links and outcome messages.
type Notifier interface {
	SendTransferConfirm(ctx context.Context, user *models.User, purpose policy.Purpose, workflowID, secret, otherEmail string) error
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

// Initiate starts an admin-role transfer. The caller must hold the
// admin role and re-authenticate by password; the successor must be an
// approved, non-deleted user. At most one transfer may be open at a
// time, enforced inside the insert itself.
func (s *Service) Initiate(ctx context.Context, fromAdminID, toUserID int64, reauthPassword, origin string) (*models.AdminTransfer, error) {
	admin, err := s.auth.RequireAdmin(ctx, fromAdminID)
	if err != nil {
		return nil, err
	}
	if err := s.auth.VerifyPassword(ctx, fromAdminID, reauthPassword); err != nil {
		return nil, err
	}

	target, err := s.repo.GetUserByID(ctx, toUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("initiate transfer: %w", workflow.ErrPreconditionFailed)
		}
		return nil, fmt.Errorf("failed to get target user: %w", err)
	}
	if target.ID == admin.ID || target.IsDeleted || target.Status != models.StatusApproved {
		return nil, fmt.Errorf("initiate transfer: %w", workflow.ErrPreconditionFailed)
	}

	rules := policy.ForKind(policy.KindAdminTransfer)
	now := time.Now().UTC()
	t := &models.AdminTransfer{
		ID:          uuid.NewString(),
		FromUserID:  admin.ID,
		ToUserID:    target.ID,
		State:       models.TransferPending,
		InitiatedAt: now,
		CompletesAt: now.Add(rules.CompletionLock),
		DeadlineAt:  now.Add(rules.Deadline),
	}
	if err := s.repo.CreateTransfer(ctx, t); err != nil {
		return nil, err
	}

	oldSecret, _, err := s.vault.Issue(ctx, admin.ID, policy.PurposeAdminTransferOld, origin)
	if err != nil {
		return nil, err
	}
	newSecret, _, err := s.vault.Issue(ctx, target.ID, policy.PurposeAdminTransferNew, origin)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendTransferConfirm(ctx, admin, policy.PurposeAdminTransferOld, t.ID, oldSecret, target.Email); err != nil {
		slog.Error("transfer_notify_failed", "workflow_id", t.ID, "side", SideOld, "error", err)
	}
	if err := s.notifier.SendTransferConfirm(ctx, target, policy.PurposeAdminTransferNew, t.ID, newSecret, admin.Email); err != nil {
		slog.Error("transfer_notify_failed", "workflow_id", t.ID, "side", SideNew, "error", err)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "transfer_initiated",
		Category:     models.AuditAdmin,
		ActorUserID:  &admin.ID,
		TargetUserID: &target.ID,
		Detail:       t.ID,
		Origin:       origin,
	})

	return t, nil
}

// Confirm records one party's confirmation. Tokens are purpose-bound,
// so the old admin's token on the new side (or vice versa) fails as
// invalid. Confirming an already-confirmed side is a no-op that returns
// the current state.
func (s *Service) Confirm(ctx context.Context, workflowID, secret string, side Side, origin string) (*models.AdminTransfer, error) {
	t, err := s.repo.GetTransferByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("confirm transfer: %w", workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	if t.Terminal() {
		return nil, fmt.Errorf("confirm transfer: %w", workflow.ErrConflict)
	}

	var purpose policy.Purpose
	var subject int64
	var confirmed bool
	switch side {
	case SideOld:
		purpose, subject, confirmed = policy.PurposeAdminTransferOld, t.FromUserID, t.OldConfirmed
	case SideNew:
		purpose, subject, confirmed = policy.PurposeAdminTransferNew, t.ToUserID, t.NewConfirmed
	default:
		return nil, fmt.Errorf("confirm transfer: %w", workflow.ErrPreconditionFailed)
	}

	if confirmed {
		// Idempotent: this party already confirmed.
		return t, nil
	}

	if err := s.vault.Consume(ctx, subject, purpose, secret, origin); err != nil {
		return nil, err
	}

	won, err := s.repo.ConfirmTransferSide(ctx, workflowID, side == SideOld)
	if err != nil {
		return nil, fmt.Errorf("failed to record confirmation: %w", err)
	}
	if won {
		s.audit.Record(ctx, models.AuditEntry{
			Action:       "transfer_confirmed_" + string(side),
			Category:     models.AuditAdmin,
			ActorUserID:  &subject,
			TargetUserID: &t.ToUserID,
			Detail:       t.ID,
			Origin:       origin,
		})
	}

	t, err = s.repo.GetTransferByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload transfer: %w", err)
	}

	// Confirming after the lock already elapsed completes right away.
	if t.Ready(time.Now().UTC()) {
		if err := s.complete(ctx, t, origin); err != nil {
			return nil, err
		}
		t, err = s.repo.GetTransferByID(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload transfer: %w", err)
		}
	}

	return t, nil
}

// Cancel terminates the open transfer. Only the current admin may
// cancel; losing the race against completion or expiry returns a
// conflict, never overwrites the terminal state.
func (s *Service) Cancel(ctx context.Context, adminID int64, reason, origin string) (*models.AdminTransfer, error) {
	admin, err := s.auth.RequireAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetOpenTransfer(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("cancel transfer: %w", workflow.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get open transfer: %w", err)
	}

	won, err := s.repo.TransitionTransfer(ctx, t.ID, models.TransferOpenStates, models.TransferCancelled, &admin.ID, &reason)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel transfer: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("cancel transfer: %w", workflow.ErrConflict)
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "transfer_cancelled",
		Category:     models.AuditAdmin,
		ActorUserID:  &admin.ID,
		TargetUserID: &t.ToUserID,
		Detail:       fmt.Sprintf("%s: %s", t.ID, reason),
		Origin:       origin,
	})
	s.notifyOutcome(ctx, t, "transfer_cancelled")

	return s.repo.GetTransferByID(ctx, t.ID)
}

// Status returns the open transfer, resolving any deadline that already
// passed, or nil when no transfer is open.
func (s *Service) Status(ctx context.Context) (*models.AdminTransfer, error) {
	t, err := s.repo.GetOpenTransfer(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open transfer: %w", err)
	}
	return s.Resolve(ctx, t)
}

// Resolve applies any due time-driven transition to an open transfer:
// expiry past the outer deadline, completion once both parties confirmed
// and the lock elapsed. Called by Status and by the sweeper.
func (s *Service) Resolve(ctx context.Context, t *models.AdminTransfer) (*models.AdminTransfer, error) {
	now := time.Now().UTC()
	switch {
	case !t.Terminal() && !now.Before(t.DeadlineAt):
		if err := s.expire(ctx, t); err != nil {
			return nil, err
		}
	case t.Ready(now):
		if err := s.complete(ctx, t, ""); err != nil {
			return nil, err
		}
	default:
		return t, nil
	}
	return s.repo.GetTransferByID(ctx, t.ID)
}

func (s *Service) complete(ctx context.Context, t *models.AdminTransfer, origin string) error {
	won, err := s.repo.CompleteTransfer(ctx, t.ID, t.FromUserID, t.ToUserID)
	if err != nil {
		return fmt.Errorf("failed to complete transfer: %w", err)
	}
	if !won {
		return nil
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "transfer_completed",
		Category:     models.AuditAdmin,
		ActorUserID:  &t.FromUserID,
		TargetUserID: &t.ToUserID,
		Detail:       t.ID,
		Origin:       origin,
	})
	slog.Info("transfer_completed", "workflow_id", t.ID, "from", t.FromUserID, "to", t.ToUserID)
	s.notifyOutcome(ctx, t, "transfer_completed")
	return nil
}

func (s *Service) expire(ctx context.Context, t *models.AdminTransfer) error {
	won, err := s.repo.TransitionTransfer(ctx, t.ID, models.TransferOpenStates, models.TransferExpired, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to expire transfer: %w", err)
	}
	if !won {
		return nil
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:       "transfer_expired",
		Category:     models.AuditAdmin,
		TargetUserID: &t.ToUserID,
		Detail:       t.ID,
	})
	s.notifyOutcome(ctx, t, "transfer_expired")
	return nil
}

// notifyOutcome mails both parties; delivery failures only get logged.
func (s *Service) notifyOutcome(ctx context.Context, t *models.AdminTransfer, outcome string) {
	for _, id := range []int64{t.FromUserID, t.ToUserID} {
		user, err := s.repo.GetUserByID(ctx, id)
		if err != nil {
			slog.Error("outcome_notify_failed", "workflow_id", t.ID, "user_id", id, "error", err)
			continue
		}
		if err := s.notifier.SendOutcome(ctx, user, outcome); err != nil {
			slog.Error("outcome_notify_failed", "workflow_id", t.ID, "user_id", id, "error", err)
		}
	}
}
