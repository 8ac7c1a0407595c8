// Package session manages the voice session lifecycle: starting calls through
// the voice provider, enforcing the per-number duration cap and finalizing
// sessions when they end.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/intent"
	"github.com/voiceos/backend/internal/shared"
	"github.com/voiceos/backend/internal/store"
	"github.com/voiceos/backend/internal/voice"
)

// StartRequest carries the inputs of a session start.
type StartRequest struct {
	UserID      string
	PhoneNumber string
	AgentID     string
}

// StartResult is returned by a successful start.
type StartResult struct {
	Session          *domain.VoiceSession `json:"session"`
	JoinURL          string               `json:"joinUrl"`
	RemainingSeconds int                  `json:"remainingSeconds"`
}

// Manager runs session start and end. It keeps no state between calls; all
// state lives in the repository.
type Manager struct {
	repo     store.Repository
	provider voice.Provider
	clock    clockwork.Clock
	cap      time.Duration
}

// NewManager creates a session manager. A non-positive cap falls back to
// domain.DefaultSessionCap.
func NewManager(repo store.Repository, provider voice.Provider, clk clockwork.Clock, sessionCap time.Duration) *Manager {
	if sessionCap <= 0 {
		sessionCap = domain.DefaultSessionCap
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Manager{repo: repo, provider: provider, clock: clk, cap: sessionCap}
}

// Cap returns the per-number duration cap.
func (m *Manager) Cap() time.Duration {
	return m.cap
}

func (m *Manager) capSeconds() int {
	return int(m.cap / time.Second)
}

// Start validates the request and its user, checks the number's active session and
// cumulative duration, creates the call at the provider and finally inserts
// the session. Nothing is written unless every prior step succeeded.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.AgentID = strings.TrimSpace(req.AgentID)

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if req.PhoneNumber == "" {
		return nil, fmt.Errorf("%w: phoneNumber is required", domain.ErrValidation)
	}
	if strings.ContainsRune(req.PhoneNumber, ',') {
		return nil, fmt.Errorf("%w: phoneNumber must not contain commas", domain.ErrValidation)
	}

	user, err := m.repo.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, req.UserID)
	}

	active, err := m.repo.ListActiveSessionsByPhone(ctx, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("check active sessions: %w", err)
	}
	if len(active) > 0 {
		slog.Info("Session start rejected, number already active",
			"phone_number", req.PhoneNumber, "active_session_id", active[0].ID)
		return nil, domain.ErrSessionActive
	}

	used, err := m.repo.SumDurationByPhone(ctx, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("sum session duration: %w", err)
	}
	if used >= m.capSeconds() {
		slog.Info("Session start rejected, cap exceeded",
			"phone_number", req.PhoneNumber, "used_seconds", used, "cap_seconds", m.capSeconds())
		return nil, domain.ErrCapExceeded
	}
	remaining := m.capSeconds() - used

	agent, err := m.resolveAgent(ctx, req.UserID, req.AgentID)
	if err != nil {
		return nil, err
	}

	prompt := intent.DefaultSystemPrompt()
	var agentID *string
	if agent != nil {
		prompt = agent.SystemPrompt
		id := agent.ID
		agentID = &id
	}

	metadata := map[string]string{
		"userId":      req.UserID,
		"phoneNumber": req.PhoneNumber,
	}
	if agentID != nil {
		metadata["agentId"] = *agentID
	}

	call, err := m.provider.CreateCall(ctx, voice.CallRequest{
		SystemPrompt: prompt,
		MaxDuration:  time.Duration(remaining) * time.Second,
		Metadata:     metadata,
	})
	if err != nil {
		var apiErr *voice.APIError
		if errors.As(err, &apiErr) {
			slog.Error("Voice provider rejected call",
				"status", apiErr.StatusCode, "body", apiErr.Body, "user_id", req.UserID)
		} else {
			slog.Error("Voice provider call failed", "error", err, "user_id", req.UserID)
		}
		if !errors.Is(err, domain.ErrProvider) {
			err = fmt.Errorf("%w: %v", domain.ErrProvider, err)
		}
		return nil, err
	}
	if call == nil || call.JoinURL == "" {
		slog.Error("Voice provider returned no join url", "user_id", req.UserID)
		return nil, fmt.Errorf("%w: no join url returned", domain.ErrProvider)
	}

	session := &domain.VoiceSession{
		UserID:      req.UserID,
		AgentID:     agentID,
		PhoneNumber: req.PhoneNumber,
		Status:      domain.StatusActive,
		StartedAt:   m.clock.Now(),
	}
	if err := m.repo.CreateSession(ctx, session); err != nil {
		if shared.IsUniqueViolation(err) {
			slog.Warn("Lost race for active session, provider call orphaned",
				"phone_number", req.PhoneNumber, "call_id", call.CallID)
			return nil, domain.ErrSessionActive
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.Info("Session started",
		"session_id", session.ID, "user_id", req.UserID, "phone_number", req.PhoneNumber,
		"call_id", call.CallID, "remaining_seconds", remaining)

	return &StartResult{Session: session, JoinURL: call.JoinURL, RemainingSeconds: remaining}, nil
}

// resolveAgent loads the requested agent, or the user's newest agent when no
// ID is given. Returns nil when the user has no agents. Agents owned by
// another user are reported as not found.
func (m *Manager) resolveAgent(ctx context.Context, userID, agentID string) (*domain.Agent, error) {
	if agentID == "" {
		agent, err := m.repo.LatestAgentByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load latest agent: %w", err)
		}
		return agent, nil
	}

	agent, err := m.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if agent == nil || agent.UserID != userID {
		return nil, fmt.Errorf("%w: agent %s", domain.ErrNotFound, agentID)
	}
	return agent, nil
}

// End finalizes a session. Ending a completed session returns it unchanged.
// Duration is recomputed from stored timestamps, never taken from the client.
func (m *Manager) End(ctx context.Context, sessionID string) (*domain.VoiceSession, error) {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return session, nil
	}

	now := m.clock.Now()
	duration := int(now.Sub(session.StartedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}
	reason := domain.ReasonUserEnded
	if duration >= m.capSeconds() {
		reason = domain.ReasonCapExceeded
	}

	updated, err := m.repo.CompleteSession(ctx, session.ID, now, duration, reason)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if updated {
		slog.Info("Session ended",
			"session_id", session.ID, "duration_seconds", duration, "termination_reason", reason)
	}

	// Re-read so a concurrent end returns the record that actually won.
	return m.Get(ctx, sessionID)
}

// Get loads a session or fails with domain.ErrNotFound.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.VoiceSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return session, nil
}

// ListByUser returns a user's sessions, newest first.
func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*domain.VoiceSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	sessions, err := m.repo.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Remaining returns the seconds left before an active session reaches the
// cap, or 0 for completed sessions.
func (m *Manager) Remaining(s *domain.VoiceSession) int {
	if !s.IsActive() {
		return 0
	}
	left := m.capSeconds() - int(m.clock.Now().Sub(s.StartedAt)/time.Second)
	if left < 0 {
		return 0
	}
	return left
}
