// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mwaldner/veriflow/internal/services/transfer"
)

// InitiateTransferRequest is the request body for starting a transfer.
type InitiateTransferRequest struct {
	ToUserID int64  `json:"to_user_id"`
	Password string `json:"password"`
}

// InitiateTransfer starts an admin-role transfer after re-authentication.
func (h *Handlers) InitiateTransfer(c echo.Context) error {
	var req InitiateTransferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	actor := sessionUser(c)
	t, err := h.transfers.Initiate(c.Request().Context(), actor.ID, req.ToUserID, req.Password, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, t)
}

// ConfirmTransferRequest is the request body for confirming a transfer.
type ConfirmTransferRequest struct {
	Token string `json:"token"`
	Side  string `json:"side"`
}

// ConfirmTransfer records one party's confirmation via its emailed token.
func (h *Handlers) ConfirmTransfer(c echo.Context) error {
	var req ConfirmTransferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}
	if req.Side == "" {
		req.Side = c.QueryParam("side")
	}

	t, err := h.transfers.Confirm(c.Request().Context(), c.Param("id"), req.Token, transfer.Side(req.Side), origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, t)
}

// CancelTransferRequest is the request body for cancelling a transfer.
type CancelTransferRequest struct {
	Reason string `json:"reason"`
}

// CancelTransfer terminates the open transfer.
func (h *Handlers) CancelTransfer(c echo.Context) error {
	var req CancelTransferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	actor := sessionUser(c)
	t, err := h.transfers.Cancel(c.Request().Context(), actor.ID, req.Reason, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, t)
}

// TransferStatus reports the open transfer, or null when none is open.
func (h *Handlers) TransferStatus(c echo.Context) error {
	t, err := h.transfers.Status(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"transfer": t})
}
