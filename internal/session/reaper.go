package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/shared"
)

// CleanupCallback is called when the reaper ends a session.
type CleanupCallback func(sessionID string)

// StartReaper runs a background goroutine that periodically ends sessions
// left active past the cap plus grace, e.g. when a browser tab was closed
// without calling end. It returns immediately; a non-positive interval
// disables it.
func StartReaper(ctx context.Context, m *Manager, interval, grace time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 {
		slog.Info("Session reaper disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session reaper started", "interval", interval, "grace", grace)

		for {
			select {
			case <-ticker.C:
				m.ReapStale(ctx, grace, onCleanup)
			case <-ctx.Done():
				slog.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// ReapStale ends every active session that started more than cap+grace ago
// and returns how many were ended.
func (m *Manager) ReapStale(ctx context.Context, grace time.Duration, onCleanup CleanupCallback) int {
	threshold := m.clock.Now().Add(-(m.cap + grace))
	stale, err := m.repo.ListStaleActiveSessions(ctx, threshold)
	if err != nil {
		slog.Error("Session reaper failed to list stale sessions", "error", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	slog.Info("Session reaper found stale sessions", "count", len(stale))

	reaped := 0
	for _, s := range stale {
		ended, err := m.endWithRetry(ctx, s.ID)
		if err != nil {
			slog.Warn("Session reaper failed to end session after retries",
				"error", err,
				"session_id", s.ID,
				"phone_number", s.PhoneNumber)
			continue
		}
		reaped++
		if onCleanup != nil {
			onCleanup(s.ID)
		}
		slog.Info("Session reaper ended session",
			"session_id", s.ID,
			"duration_seconds", ended.Duration(),
			"termination_reason", ended.Reason())
	}

	slog.Info("Session reaper sweep completed", "reaped", reaped)
	return reaped
}

// endWithRetry ends a session with exponential backoff to handle
// SQLITE_BUSY errors.
func (m *Manager) endWithRetry(ctx context.Context, sessionID string) (*domain.VoiceSession, error) {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		s, err := m.End(ctx, sessionID)
		if err == nil {
			return s, nil
		}
		lastErr = err

		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms, 200ms
		slog.Debug("Session reaper: database locked, retrying",
			"session_id", sessionID,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
