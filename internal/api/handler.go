// Package api provides HTTP handlers for the VoiceOS API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/live"
	"github.com/voiceos/backend/internal/session"
	"github.com/voiceos/backend/internal/stats"
	"github.com/voiceos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	stats    *stats.Aggregator
	hub      *live.Hub
	clock    clockwork.Clock
	isDev    bool
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions *session.Manager, agg *stats.Aggregator, hub *live.Hub, clk clockwork.Clock, isDev bool) *Handler {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Handler{
		repo:     repo,
		sessions: sessions,
		stats:    agg,
		hub:      hub,
		clock:    clk,
		isDev:    isDev,
	}
}

// RegisterRoutes mounts every API resource on r. Callers mount r under /api.
func (h *Handler) RegisterRoutes(r chi.Router, liveHandler http.Handler) {
	NewAuthHandler(h).RegisterRoutes(r)
	NewAgentHandler(h).RegisterRoutes(r)
	NewSessionHandler(h, liveHandler).RegisterRoutes(r)
	NewStatsHandler(h).RegisterRoutes(r)
	NewHealthHandler(h.repo).RegisterHealth(r)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Rejection is the body of a 409 business rejection.
type Rejection struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps domain errors to status codes. Business rejections and
// caller errors are not logged as failures.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrSessionActive):
		JSON(w, http.StatusConflict, Rejection{
			Error:   "session_active",
			Message: "A session is already active for this number",
		})
	case errors.Is(err, domain.ErrCapExceeded):
		JSON(w, http.StatusConflict, Rejection{
			Error:   "cap_exceeded",
			Message: fmt.Sprintf("This number has used its %d second call allowance", int(h.sessions.Cap().Seconds())),
		})
	case errors.Is(err, domain.ErrProvider):
		Error(w, http.StatusBadGateway, h.serverMessage("voice provider unavailable", err))
	default:
		slog.Error("Request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		Error(w, http.StatusInternalServerError, h.serverMessage("internal server error", err))
	}
}

// serverMessage hides upstream details outside development.
func (h *Handler) serverMessage(generic string, err error) string {
	if h.isDev {
		return err.Error()
	}
	return generic
}

// decode reads a JSON request body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}
