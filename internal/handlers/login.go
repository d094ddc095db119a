// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// BeginLoginChallengeRequest is the request body for starting a login.
type BeginLoginChallengeRequest struct {
	UserID int64 `json:"user_id"`
}

// BeginLoginChallenge opens a login challenge and mails the code.
func (h *Handlers) BeginLoginChallenge(c echo.Context) error {
	var req BeginLoginChallengeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	challenge, err := h.logins.Begin(c.Request().Context(), req.UserID, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"challenge_id": challenge.ID,
		"delivered_to": challenge.DeliveredTo,
		"expires_at":   challenge.ExpiresAt,
	})
}

// VerifyLoginChallengeRequest is the request body for verifying a code.
type VerifyLoginChallengeRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

// VerifyLoginChallenge consumes the code and returns a session token.
func (h *Handlers) VerifyLoginChallenge(c echo.Context) error {
	var req VerifyLoginChallengeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	token, err := h.logins.Verify(c.Request().Context(), req.ChallengeID, req.Code, origin(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"session_token": token})
}

// ResendLoginChallengeRequest is the request body for resending a code.
type ResendLoginChallengeRequest struct {
	ChallengeID string `json:"challenge_id"`
}

// ResendLoginChallenge re-issues the code, subject to the cooldown.
func (h *Handlers) ResendLoginChallenge(c echo.Context) error {
	var req ResendLoginChallengeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if err := h.logins.Resend(c.Request().Context(), req.ChallengeID, origin(c)); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}
