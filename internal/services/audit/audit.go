// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package audit is the append-only ledger of security-relevant
// transitions. Every other service writes to it; nothing inside the
// engine reads it back except the query surface used by operators.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mwaldner/veriflow/internal/models"
	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/sse"
)

type Service struct {
	repo *repository.Repository
	hub  *sse.Hub
}

func NewService(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// StreamTo makes every recorded entry also flow to the given hub as a
// live event, on top of the durable ledger write.
func (s *Service) StreamTo(hub *sse.Hub) {
	s.hub = hub
}

// Record appends one ledger entry. Callers invoke it after their state
// transition committed, so ledger order matches commit order per
// workflow. A write failure is logged and swallowed: the transition
// already happened and must not be reported as failed.
func (s *Service) Record(ctx context.Context, entry models.AuditEntry) {
	if err := s.repo.AppendAuditEntry(ctx, &entry); err != nil {
		slog.Error("audit_append_failed", "action", entry.Action, "error", err)
		return
	}

	if s.hub != nil {
		if payload, err := json.Marshal(entry); err == nil {
			s.hub.Broadcast(sse.FormatEvent("audit", string(payload)))
		}
	}
}

// Query returns ledger entries matching the filter, newest first.
func (s *Service) Query(ctx context.Context, f repository.AuditFilter, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.QueryAuditLog(ctx, f, limit, offset)
}
