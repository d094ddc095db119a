// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package sweeper resolves time-boxed workflows that received no further
// action: it expires login challenges and transfers past their deadline,
// completes transfers whose lock elapsed, and auto-cancels unanswered
// deletion requests. It is the only source of automatic cancellation.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/services/deletion"
	"github.com/mwaldner/veriflow/internal/services/login"
	"github.com/mwaldner/veriflow/internal/services/transfer"
)

type Sweeper struct {
	repo      *repository.Repository
	logins    *login.Service
	transfers *transfer.Service
	deletions *deletion.Service
	interval  time.Duration
}

func New(repo *repository.Repository, logins *login.Service, transfers *transfer.Service, deletions *deletion.Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		repo:      repo,
		logins:    logins,
		transfers: transfers,
		deletions: deletions,
		interval:  interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("sweeper_started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper_stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Each workflow is evaluated and committed on
// its own; a storage error on one is logged and does not stop the rest,
// and no lock is held across the pass. All transitions are
// compare-and-set, so racing a user-initiated confirm or cancel is safe:
// exactly one writer wins the terminal slot.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	s.sweepLoginChallenges(ctx, now)
	s.sweepTransfers(ctx)
	s.sweepDeletions(ctx, now)

	if err := s.repo.DeleteExpiredTokens(ctx); err != nil {
		slog.Error("sweep_token_cleanup_failed", "error", err)
	}
}

func (s *Sweeper) sweepLoginChallenges(ctx context.Context, now time.Time) {
	challenges, err := s.repo.OpenLoginChallenges(ctx)
	if err != nil {
		slog.Error("sweep_login_scan_failed", "error", err)
		return
	}
	for i := range challenges {
		c := &challenges[i]
		if now.Before(c.ExpiresAt) {
			continue
		}
		if err := s.logins.Expire(ctx, c); err != nil {
			slog.Error("sweep_login_expire_failed", "challenge_id", c.ID, "error", err)
		}
	}
}

func (s *Sweeper) sweepTransfers(ctx context.Context) {
	t, err := s.repo.GetOpenTransfer(ctx)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("sweep_transfer_scan_failed", "error", err)
		}
		return
	}
	if _, err := s.transfers.Resolve(ctx, t); err != nil {
		slog.Error("sweep_transfer_resolve_failed", "workflow_id", t.ID, "error", err)
	}
}

func (s *Sweeper) sweepDeletions(ctx context.Context, now time.Time) {
	open, err := s.deletions.ListPending(ctx)
	if err != nil {
		slog.Error("sweep_deletion_scan_failed", "error", err)
		return
	}
	for i := range open {
		d := &open[i]
		if now.Before(d.ExpiresAt) {
			continue
		}
		var serr error
		switch d.State {
		case models.DeletionPending:
			serr = s.deletions.AutoCancel(ctx, d)
		case models.DeletionVerified:
			serr = s.deletions.ExpireVerified(ctx, d)
		}
		if serr != nil {
			slog.Error("sweep_deletion_failed", "workflow_id", d.ID, "error", serr)
		}
	}
}
