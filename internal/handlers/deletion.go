// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// InitiateDeletionRequest is the request body for starting a deletion.
type InitiateDeletionRequest struct {
	TargetUserID int64  `json:"target_user_id"`
	Password     string `json:"password"`
	ConfirmText  string `json:"confirm_text"`
	ConfirmEmail string `json:"confirm_email"`
	Reason       string `json:"reason"`
}

// InitiateDeletion opens a deletion workflow for a target user.
func (h *Handlers) InitiateDeletion(c echo.Context) error {
	var req InitiateDeletionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	actor := sessionUser(c)
	d, err := h.deletions.Initiate(c.Request().Context(), actor.ID, req.TargetUserID,
		req.Password, req.ConfirmText, req.ConfirmEmail, req.Reason, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, d)
}

// ConfirmDeletionRequest is the request body for the target's acknowledgement.
type ConfirmDeletionRequest struct {
	Token string `json:"token"`
}

// ConfirmDeletionByTarget spends the acknowledgement token and executes
// the soft delete.
func (h *Handlers) ConfirmDeletionByTarget(c echo.Context) error {
	var req ConfirmDeletionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}

	d, err := h.deletions.ConfirmByTarget(c.Request().Context(), req.Token, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, d)
}

// CancelDeletion withdraws a pending deletion workflow.
func (h *Handlers) CancelDeletion(c echo.Context) error {
	actor := sessionUser(c)
	d, err := h.deletions.Cancel(c.Request().Context(), c.Param("id"), actor.ID, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, d)
}

// ListPendingDeletions returns all open deletion workflows.
func (h *Handlers) ListPendingDeletions(c echo.Context) error {
	out, err := h.deletions.ListPending(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"deletions": out})
}
