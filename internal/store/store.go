// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/voiceos/backend/internal/domain"
)

// Repository defines the interface for persisting users, agents, voice
// sessions and intent logs. Get* lookups return (nil, nil) when the record
// does not exist.
type Repository interface {
	// CreateUser inserts a user, assigning ID and CreatedAt when unset.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUserByMobile retrieves a user by mobile number and country code.
	GetUserByMobile(ctx context.Context, mobile, countryCode string) (*domain.User, error)

	// ListUsers returns all users, newest first.
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// CreateAgent inserts an agent, assigning ID and CreatedAt when unset.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// GetAgent retrieves an agent by ID.
	GetAgent(ctx context.Context, id string) (*domain.Agent, error)

	// ListAgentsByUser returns a user's agents, newest first.
	ListAgentsByUser(ctx context.Context, userID string) ([]*domain.Agent, error)

	// LatestAgentByUser returns the most recently created agent of a user.
	LatestAgentByUser(ctx context.Context, userID string) (*domain.Agent, error)

	// ListAgents returns all agents, newest first.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// CreateSession inserts a voice session, assigning ID when unset.
	// Inserting a second active session for the same phone number fails
	// with a unique constraint violation.
	CreateSession(ctx context.Context, session *domain.VoiceSession) error

	// GetSession retrieves a voice session by ID.
	GetSession(ctx context.Context, id string) (*domain.VoiceSession, error)

	// ListSessionsByUser returns a user's sessions, newest first.
	ListSessionsByUser(ctx context.Context, userID string) ([]*domain.VoiceSession, error)

	// ListActiveSessionsByPhone returns active sessions for a phone number.
	ListActiveSessionsByPhone(ctx context.Context, phoneNumber string) ([]*domain.VoiceSession, error)

	// SumDurationByPhone totals recorded duration seconds for a phone number.
	SumDurationByPhone(ctx context.Context, phoneNumber string) (int, error)

	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]*domain.VoiceSession, error)

	// ListStaleActiveSessions returns active sessions started before the given time.
	ListStaleActiveSessions(ctx context.Context, startedBefore time.Time) ([]*domain.VoiceSession, error)

	// CompleteSession marks an active session completed in a single update.
	// Returns false if the session was not active (or does not exist).
	CompleteSession(ctx context.Context, id string, endedAt time.Time, durationSeconds int, reason string) (bool, error)

	// CreateIntentLog inserts an intent log, assigning ID and CapturedAt when unset.
	CreateIntentLog(ctx context.Context, log *domain.IntentLog) error

	// ListIntentLogsByUser returns up to limit of a user's intent logs, newest first.
	ListIntentLogsByUser(ctx context.Context, userID string, limit int) ([]*domain.IntentLog, error)

	// ListIntentLogs returns all intent logs, newest first.
	ListIntentLogs(ctx context.Context) ([]*domain.IntentLog, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
