// Package live streams session status to browser clients over WebSocket.
package live

import (
	"context"
	"log/slog"
	"sync"
)

// Hub tracks the open status streams for each voice session so they can be
// closed when the session ends.
type Hub struct {
	mu       sync.RWMutex
	watchers map[string]map[string]context.CancelFunc
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		watchers: make(map[string]map[string]context.CancelFunc),
	}
}

// Count returns the number of open streams for a session.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers[sessionID])
}

// Register adds a stream for a session. cancel stops the stream.
func (h *Hub) Register(sessionID, watcherID string, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.watchers[sessionID]; !exists {
		h.watchers[sessionID] = make(map[string]context.CancelFunc)
	}
	if existing, exists := h.watchers[sessionID][watcherID]; exists {
		existing()
	}

	h.watchers[sessionID][watcherID] = cancel
	slog.Debug("Live stream registered", "session_id", sessionID, "watcher_id", watcherID)
}

// Unregister removes a stream. It does not cancel it.
func (h *Hub) Unregister(sessionID, watcherID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if streams, ok := h.watchers[sessionID]; ok {
		if _, exists := streams[watcherID]; exists {
			delete(streams, watcherID)
			if len(streams) == 0 {
				delete(h.watchers, sessionID)
			}
			slog.Debug("Live stream unregistered", "session_id", sessionID, "watcher_id", watcherID)
		}
	}
}

// Close stops every stream watching a session.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	streams, ok := h.watchers[sessionID]
	if !ok {
		return
	}
	for _, cancel := range streams {
		cancel()
	}
	delete(h.watchers, sessionID)
	slog.Info("Live streams closed", "session_id", sessionID, "count", len(streams))
}
