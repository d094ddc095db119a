// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

package sse

import (
	"fmt"
	"strings"
)

// FormatEvent renders one SSE frame with an optional event name.
// Multiline payloads get a "data:" prefix per line.
func FormatEvent(eventName, data string) string {
	var sb strings.Builder

	if eventName != "" {
		sb.WriteString(fmt.Sprintf("event: %s\n", eventName))
	}

	for _, line := range strings.Split(data, "\n") {
		sb.WriteString(fmt.Sprintf("data: %s\n", line))
	}

	sb.WriteString("\n") // Empty line marks end of event
	return sb.String()
}

// Heartbeat is an SSE comment that keeps idle connections alive.
// Comments (lines starting with :) are ignored by SSE clients.
const Heartbeat = ": heartbeat\n\n"
