// Copyright 2025 Markus Waldner
// Licensed under the EUPL-1.2

// Package sse streams audit ledger entries to connected operators as
// Server-Sent Events.
package sse

import (
	"sync"

	"github.com/google/uuid"
)

// subscriber is one open stream connection.
type subscriber struct {
	ch     chan string
	userID int64
}

// Hub fans ledger events out to all open streams. A user may hold
// several connections at once (multiple terminals); each gets its own
// buffered channel, and a slow consumer drops events rather than block
// the writer.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]subscriber)}
}

// Subscribe opens a stream for the given user. Returns the subscription
// ID (needed to unsubscribe) and the channel events arrive on.
func (h *Hub) Subscribe(userID int64) (string, chan string) {
	ch := make(chan string, 16)
	id := uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = subscriber{ch: ch, userID: userID}
	return id, ch
}

// Unsubscribe closes a stream and releases its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
}

// Broadcast delivers a message to every open stream. Sends are
// non-blocking; a full channel skips the message.
func (h *Hub) Broadcast(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- message:
		default:
		}
	}
}

// SendToUser delivers a message to every stream the given user holds.
func (h *Hub) SendToUser(userID int64, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.userID != userID {
			continue
		}
		select {
		case sub.ch <- message:
		default:
		}
	}
}

// SubscriberCount returns the number of open streams.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// UserCount returns the number of distinct users holding streams.
func (h *Hub) UserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[int64]struct{}, len(h.subs))
	for _, sub := range h.subs {
		seen[sub.userID] = struct{}{}
	}
	return len(seen)
}
