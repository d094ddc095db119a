// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mwaldner/veriflow/internal/repository"
	"github.com/mwaldner/veriflow/internal/sse"
)

// QueryAuditLog returns ledger entries, newest first, filtered by
// category, actor, target, or action.
func (h *Handlers) QueryAuditLog(c echo.Context) error {
	filter := repository.AuditFilter{
		Category: c.QueryParam("category"),
		Action:   c.QueryParam("action"),
	}
	if v := c.QueryParam("actor_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid actor_id"})
		}
		filter.ActorID = id
	}
	if v := c.QueryParam("target_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid target_id"})
		}
		filter.TargetID = id
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	entries, err := h.audits.Query(c.Request().Context(), filter, limit, offset)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

// StreamAuditLog pushes new ledger entries to the caller as they are
// recorded, as Server-Sent Events. The connection stays open until the
// client goes away.
func (h *Handlers) StreamAuditLog(c echo.Context) error {
	actor := sessionUser(c)
	id, ch := h.stream.Subscribe(actor.ID)
	defer h.stream.Unsubscribe(id)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := io.WriteString(resp, msg); err != nil {
				return nil
			}
			resp.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(resp, sse.Heartbeat); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
