// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package handlers exposes the workflow engine over a thin JSON surface.
// Handlers bind, delegate to a service, and map the error taxonomy to
// status codes; no business rules live here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mwaldner/veriflow/internal/services/audit"
	"github.com/mwaldner/veriflow/internal/services/deletion"
	"github.com/mwaldner/veriflow/internal/services/login"
	"github.com/mwaldner/veriflow/internal/services/session"
	"github.com/mwaldner/veriflow/internal/services/transfer"
	"github.com/mwaldner/veriflow/internal/sse"
	"github.com/mwaldner/veriflow/internal/workflow"
)

type Handlers struct {
	logins    *login.Service
	transfers *transfer.Service
	deletions *deletion.Service
	audits    *audit.Service
	sessions  *session.Service
	stream    *sse.Hub
}

func New(logins *login.Service, transfers *transfer.Service, deletions *deletion.Service, audits *audit.Service, sessions *session.Service, stream *sse.Hub) *Handlers {
	return &Handlers{
		logins:    logins,
		transfers: transfers,
		deletions: deletions,
		audits:    audits,
		sessions:  sessions,
		stream:    stream,
	}
}

// RegisterRoutes wires all endpoints into the echo instance.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/login/challenge", h.BeginLoginChallenge)
	e.POST("/auth/login/verify", h.VerifyLoginChallenge)
	e.POST("/auth/login/resend", h.ResendLoginChallenge)

	admin := e.Group("/admin", h.requireSession)
	admin.POST("/transfer", h.InitiateTransfer)
	admin.GET("/transfer", h.TransferStatus)
	admin.DELETE("/transfer", h.CancelTransfer)
	admin.POST("/deletions", h.InitiateDeletion)
	admin.GET("/deletions", h.ListPendingDeletions)
	admin.DELETE("/deletions/:id", h.CancelDeletion)
	admin.GET("/audit", h.QueryAuditLog)
	admin.GET("/audit/stream", h.StreamAuditLog)

	// Confirmation links arrive from emails, outside any session.
	e.POST("/admin/transfer/:id/confirm", h.ConfirmTransfer)
	e.POST("/admin/deletions/confirm", h.ConfirmDeletionByTarget)
}

// writeError maps the workflow error taxonomy to JSON responses.
// Invalid and expired secrets share one message so a failed confirmation
// does not reveal which check failed.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, workflow.ErrInvalidToken), errors.Is(err, workflow.ErrTokenExpired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid or expired code"})
	case errors.Is(err, workflow.ErrTokenConsumed):
		return c.JSON(http.StatusConflict, map[string]string{"error": "code already used"})
	case errors.Is(err, workflow.ErrConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": "request no longer applies to the current state"})
	case errors.Is(err, workflow.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, workflow.ErrCooldownActive):
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "please wait before requesting another code"})
	case errors.Is(err, workflow.ErrTransferInProgress):
		return c.JSON(http.StatusConflict, map[string]string{"error": "a transfer is already in progress"})
	case errors.Is(err, workflow.ErrPreconditionFailed):
		return c.JSON(http.StatusPreconditionFailed, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// origin extracts the caller's network origin for the audit trail.
func origin(c echo.Context) string {
	return c.RealIP()
}
