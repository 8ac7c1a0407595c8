package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/session"
)

// DefaultInterval is how often a status message is pushed.
const DefaultInterval = 5 * time.Second

// StatusMessage is pushed to the client on every tick.
type StatusMessage struct {
	Type              string  `json:"type"`
	SessionID         string  `json:"sessionId"`
	Status            string  `json:"status"`
	RemainingSeconds  int     `json:"remainingSeconds"`
	DurationSeconds   *int    `json:"durationSeconds,omitempty"`
	TerminationReason *string `json:"terminationReason,omitempty"`
}

// StatusHandler upgrades GET /sessions/{id}/live to a WebSocket and pushes
// the session's status until it completes.
type StatusHandler struct {
	sessions      *session.Manager
	hub           *Hub
	interval      time.Duration
	allowedOrigin string
	isDev         bool
}

// NewStatusHandler creates a status stream handler. A non-positive interval
// uses DefaultInterval.
func NewStatusHandler(sessions *session.Manager, hub *Hub, interval time.Duration, allowedOrigin string, isDev bool) *StatusHandler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &StatusHandler{
		sessions:      sessions,
		hub:           hub,
		interval:      interval,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	// Reject unknown sessions before upgrading so the client gets a real status.
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrValidation):
			http.Error(w, "session id is required", http.StatusBadRequest)
		default:
			slog.Error("Failed to load session for live stream", "error", err, "session_id", sessionID)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer ws.CloseNow()

	watcherID := uuid.NewString()
	closed, closeStream := context.WithCancel(context.Background())
	defer closeStream()

	h.hub.Register(sessionID, watcherID, closeStream)
	defer h.hub.Unregister(sessionID, watcherID)

	// Client messages are not expected; CloseRead handles pings and close
	// frames and cancels ctx once the client goes away.
	ctx := ws.CloseRead(r.Context())

	slog.Info("Live stream opened", "session_id", sessionID, "watcher_id", watcherID, "ip", r.RemoteAddr)
	h.stream(ctx, closed, ws, sessionID)
	slog.Info("Live stream ended", "session_id", sessionID, "watcher_id", watcherID)
}

// stream pushes status every interval until the session completes, the
// client disconnects or closed is cancelled by the hub.
func (h *StatusHandler) stream(ctx, closed context.Context, ws *websocket.Conn, sessionID string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		done, err := h.push(ctx, ws, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("Live stream write failed", "error", err, "session_id", sessionID)
			}
			return
		}
		if done {
			_ = ws.Close(websocket.StatusNormalClosure, "session completed")
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-closed.Done():
			finalCtx, cancel := context.WithTimeout(ctx, time.Second)
			_, _ = h.push(finalCtx, ws, sessionID)
			cancel()
			_ = ws.Close(websocket.StatusNormalClosure, "session closed")
			return
		}
	}
}

// push sends the current status and reports whether the session has completed.
func (h *StatusHandler) push(ctx context.Context, ws *websocket.Conn, sessionID string) (bool, error) {
	s, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	msg := StatusMessage{
		Type:              "status",
		SessionID:         s.ID,
		Status:            s.Status,
		RemainingSeconds:  h.sessions.Remaining(s),
		DurationSeconds:   s.DurationSeconds,
		TerminationReason: s.TerminationReason,
	}
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		return false, err
	}
	return !s.IsActive(), nil
}

func (h *StatusHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
