package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/identity"
	"github.com/voiceos/backend/internal/session"
)

// SessionHandler handles voice session endpoints.
type SessionHandler struct {
	*Handler
	live http.Handler
}

// NewSessionHandler creates a new session handler. liveHandler serves the
// status stream and may be nil.
func NewSessionHandler(base *Handler, liveHandler http.Handler) *SessionHandler {
	return &SessionHandler{Handler: base, live: liveHandler}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/start", h.Start)
	r.Post("/sessions/{id}/end", h.End)
	r.Get("/sessions", h.List)
	r.Get("/sessions/{id}", h.Get)
	if h.live != nil {
		r.Get("/sessions/{id}/live", h.live.ServeHTTP)
	}
}

type startRequest struct {
	UserID      string `json:"userId"`
	PhoneNumber string `json:"phoneNumber"`
	AgentID     string `json:"agentId"`
}

type sessionResponse struct {
	Session          *domain.VoiceSession `json:"session"`
	RemainingSeconds int                  `json:"remainingSeconds"`
}

// Start begins a voice session. Without a phoneNumber the user's own
// registered number is used.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	userID := identity.ResolveUserID(r, req.UserID)

	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" && userID != "" {
		user := identity.UserFromContext(r.Context())
		if user == nil || user.ID != userID {
			var err error
			user, err = h.repo.GetUser(r.Context(), userID)
			if err != nil {
				h.writeError(w, r, fmt.Errorf("lookup user: %w", err))
				return
			}
		}
		if user != nil {
			phone = user.PhoneNumber()
		}
	}

	result, err := h.sessions.Start(r.Context(), session.StartRequest{
		UserID:      userID,
		PhoneNumber: phone,
		AgentID:     req.AgentID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// End finalizes a session and closes its live status streams.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.End(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.hub != nil {
		h.hub.Close(s.ID)
	}
	JSON(w, http.StatusOK, sessionResponse{Session: s})
}

// List returns a user's sessions, newest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.ResolveUserID(r, r.URL.Query().Get("userId"))
	sessions, err := h.sessions.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*domain.VoiceSession{}
	}
	JSON(w, http.StatusOK, sessions)
}

// Get returns one session and its remaining allowance.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sessionResponse{Session: s, RemainingSeconds: h.sessions.Remaining(s)})
}
