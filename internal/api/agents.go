package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/identity"
	"github.com/voiceos/backend/internal/intent"
)

const intentHistoryLimit = 50

// AgentHandler handles agent generation and the intent history.
type AgentHandler struct {
	*Handler
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(base *Handler) *AgentHandler {
	return &AgentHandler{Handler: base}
}

// RegisterRoutes registers agent routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/agents/generate", h.Generate)
	r.Get("/agents", h.List)
	r.Get("/agents/{id}", h.Get)
	r.Get("/intents", h.Intents)
}

type generateRequest struct {
	Intent string `json:"intent"`
	UserID string `json:"userId"`
}

type agentResponse struct {
	Agent *domain.Agent `json:"agent"`
}

// Generate classifies the intent, stores the resulting agent and records
// the intent in the audit log.
func (h *AgentHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	userID := identity.ResolveUserID(r, req.UserID)
	if userID == "" {
		h.writeError(w, r, fmt.Errorf("%w: userId is required", domain.ErrValidation))
		return
	}

	req.Intent = strings.TrimSpace(req.Intent)
	persona, err := intent.Classify(req.Intent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	user, err := h.repo.GetUser(ctx, userID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("lookup user: %w", err))
		return
	}
	if user == nil {
		h.writeError(w, r, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID))
		return
	}

	agent := &domain.Agent{
		UserID:    userID,
		Intent:    req.Intent,
		Persona:   persona,
		CreatedAt: h.clock.Now(),
	}
	if err := h.repo.CreateAgent(ctx, agent); err != nil {
		h.writeError(w, r, fmt.Errorf("create agent: %w", err))
		return
	}

	entry := &domain.IntentLog{
		UserID:     userID,
		IntentText: agent.Intent,
		IntentType: agent.Domain,
		CapturedAt: agent.CreatedAt,
	}
	if err := h.repo.CreateIntentLog(ctx, entry); err != nil {
		slog.Warn("Failed to record intent", "error", err, "user_id", userID, "agent_id", agent.ID)
	}

	slog.Info("Agent generated", "agent_id", agent.ID, "user_id", userID, "domain", agent.Domain)
	JSON(w, http.StatusOK, agentResponse{Agent: agent})
}

// List returns a user's agents, newest first.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.ResolveUserID(r, r.URL.Query().Get("userId"))
	if userID == "" {
		h.writeError(w, r, fmt.Errorf("%w: userId is required", domain.ErrValidation))
		return
	}

	agents, err := h.repo.ListAgentsByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("list agents: %w", err))
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	JSON(w, http.StatusOK, agents)
}

// Get returns one agent.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	agent, err := h.repo.GetAgent(r.Context(), id)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("load agent: %w", err))
		return
	}
	if agent == nil {
		h.writeError(w, r, fmt.Errorf("%w: agent %s", domain.ErrNotFound, id))
		return
	}
	JSON(w, http.StatusOK, agent)
}

// Intents returns a user's most recent intent log entries.
func (h *AgentHandler) Intents(w http.ResponseWriter, r *http.Request) {
	userID := identity.ResolveUserID(r, r.URL.Query().Get("userId"))
	if userID == "" {
		h.writeError(w, r, fmt.Errorf("%w: userId is required", domain.ErrValidation))
		return
	}

	logs, err := h.repo.ListIntentLogsByUser(r.Context(), userID, intentHistoryLimit)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("list intent logs: %w", err))
		return
	}
	if logs == nil {
		logs = []*domain.IntentLog{}
	}
	JSON(w, http.StatusOK, logs)
}
