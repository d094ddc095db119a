// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mwaldner/veriflow/internal/services/session"
)

const sessionUserKey = "session_user"

// requireSession decodes the bearer session token and stores the caller
// identity in the echo context. Role checks against the database happen
// in the services; the token only names the caller.
func (h *Handlers) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing session token"})
		}

		user, err := h.sessions.Decode(token)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid session token"})
		}

		c.Set(sessionUserKey, user)
		return next(c)
	}
}

// sessionUser returns the identity stored by requireSession.
func sessionUser(c echo.Context) *session.User {
	user, _ := c.Get(sessionUserKey).(*session.User)
	return user
}
