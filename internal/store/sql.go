package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voiceos/backend/internal/domain"
)

// sqlStore implements Repository over database/sql. Queries are written with
// '?' placeholders and rebound for the active dialect.
type sqlStore struct {
	db       *sql.DB
	dollarPH bool
}

func newSQLStore(db *sql.DB, dollarPlaceholders bool) *sqlStore {
	return &sqlStore{db: db, dollarPH: dollarPlaceholders}
}

// rebind rewrites '?' placeholders to '$n' for Postgres.
func (s *sqlStore) rebind(query string) string {
	if !s.dollarPH {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) initSchema(statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// stamp returns t, or now when t is zero, truncated to the stored precision.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return fromMillis(toMillis(t))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

// Ping verifies database connectivity.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// ---- users ----

const userColumns = `id, email, mobile, country_code, role, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Email, &user.Mobile, &user.CountryCode, &user.Role, &createdAt); err != nil {
		return nil, err
	}
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

func (s *sqlStore) getUserWhere(ctx context.Context, where string, args ...any) (*domain.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a user record.
func (s *sqlStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CountryCode == "" {
		user.CountryCode = domain.DefaultCountryCode
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.CreatedAt = stamp(user.CreatedAt)

	query := s.rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Mobile, user.CountryCode, user.Role, toMillis(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *sqlStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUserWhere(ctx, `id = ?`, id)
}

// GetUserByEmail retrieves a user by email.
func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUserWhere(ctx, `email = ?`, email)
}

// GetUserByMobile retrieves a user by mobile number and country code.
func (s *sqlStore) GetUserByMobile(ctx context.Context, mobile, countryCode string) (*domain.User, error) {
	return s.getUserWhere(ctx, `mobile = ? AND country_code = ? ORDER BY created_at ASC LIMIT 1`, mobile, countryCode)
}

// ListUsers returns all users, newest first.
func (s *sqlStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeRows(rows, "users")

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// ---- agents ----

const agentColumns = `id, user_id, intent, agent_name, personality, tone, domain, objective,
	risk_sensitivity, emotional_calibration, communication_style, domain_context,
	conversation_rules, risk_flags, closing_goal, system_prompt, created_at`

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var rulesJSON, flagsJSON string
	var createdAt int64
	err := row.Scan(
		&agent.ID, &agent.UserID, &agent.Intent, &agent.AgentName, &agent.Personality,
		&agent.Tone, &agent.Domain, &agent.Objective,
		&agent.RiskSensitivity, &agent.EmotionalCalibration, &agent.CommunicationStyle, &agent.DomainContext,
		&rulesJSON, &flagsJSON, &agent.ClosingGoal, &agent.SystemPrompt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rulesJSON), &agent.ConversationRules); err != nil {
		return nil, fmt.Errorf("decode conversation rules: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &agent.RiskFlags); err != nil {
		return nil, fmt.Errorf("decode risk flags: %w", err)
	}
	agent.CreatedAt = fromMillis(createdAt)
	return &agent, nil
}

func (s *sqlStore) queryAgents(ctx context.Context, query string, args ...any) ([]*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer closeRows(rows, "agents")

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// CreateAgent inserts an agent record.
func (s *sqlStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	if agent.ID == "" {
		agent.ID = newID()
	}
	agent.CreatedAt = stamp(agent.CreatedAt)
	if agent.ConversationRules == nil {
		agent.ConversationRules = []string{}
	}
	if agent.RiskFlags == nil {
		agent.RiskFlags = []string{}
	}

	rulesJSON, err := json.Marshal(agent.ConversationRules)
	if err != nil {
		return fmt.Errorf("encode conversation rules: %w", err)
	}
	flagsJSON, err := json.Marshal(agent.RiskFlags)
	if err != nil {
		return fmt.Errorf("encode risk flags: %w", err)
	}

	query := s.rebind(`INSERT INTO agents (` + agentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, query,
		agent.ID, agent.UserID, agent.Intent, agent.AgentName, agent.Personality,
		agent.Tone, agent.Domain, agent.Objective,
		agent.RiskSensitivity, agent.EmotionalCalibration, agent.CommunicationStyle, agent.DomainContext,
		string(rulesJSON), string(flagsJSON), agent.ClosingGoal, agent.SystemPrompt, toMillis(agent.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *sqlStore) GetAgent(ctx context.Context, id string) (*domain.Agent, error) {
	query := s.rebind(`SELECT ` + agentColumns + ` FROM agents WHERE id = ?`)
	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return agent, nil
}

// ListAgentsByUser returns a user's agents, newest first.
func (s *sqlStore) ListAgentsByUser(ctx context.Context, userID string) ([]*domain.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// LatestAgentByUser returns the most recently created agent of a user.
func (s *sqlStore) LatestAgentByUser(ctx context.Context, userID string) (*domain.Agent, error) {
	agents, err := s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, nil
	}
	return agents[0], nil
}

// ListAgents returns all agents, newest first.
func (s *sqlStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC`)
}

// ---- voice sessions ----

const sessionColumns = `id, user_id, agent_id, phone_number, status, started_at,
	ended_at, duration_seconds, termination_reason`

func scanSession(row rowScanner) (*domain.VoiceSession, error) {
	var session domain.VoiceSession
	var agentID, reason sql.NullString
	var startedAt int64
	var endedAt, duration sql.NullInt64
	err := row.Scan(
		&session.ID, &session.UserID, &agentID, &session.PhoneNumber, &session.Status, &startedAt,
		&endedAt, &duration, &reason,
	)
	if err != nil {
		return nil, err
	}
	session.StartedAt = fromMillis(startedAt)
	if agentID.Valid {
		session.AgentID = &agentID.String
	}
	if endedAt.Valid {
		ts := fromMillis(endedAt.Int64)
		session.EndedAt = &ts
	}
	if duration.Valid {
		d := int(duration.Int64)
		session.DurationSeconds = &d
	}
	if reason.Valid {
		session.TerminationReason = &reason.String
	}
	return &session, nil
}

func (s *sqlStore) querySessions(ctx context.Context, query string, args ...any) ([]*domain.VoiceSession, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []*domain.VoiceSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession inserts a voice session record.
func (s *sqlStore) CreateSession(ctx context.Context, session *domain.VoiceSession) error {
	if session.ID == "" {
		session.ID = newID()
	}
	if session.Status == "" {
		session.Status = domain.StatusActive
	}
	session.StartedAt = stamp(session.StartedAt)

	var agentID, endedAt, duration, reason any
	if session.AgentID != nil {
		agentID = *session.AgentID
	}
	if session.EndedAt != nil {
		ts := stamp(*session.EndedAt)
		session.EndedAt = &ts
		endedAt = toMillis(ts)
	}
	if session.DurationSeconds != nil {
		duration = *session.DurationSeconds
	}
	if session.TerminationReason != nil {
		reason = *session.TerminationReason
	}

	query := s.rebind(`INSERT INTO voice_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, agentID, session.PhoneNumber, session.Status, toMillis(session.StartedAt),
		endedAt, duration, reason,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a voice session by ID.
func (s *sqlStore) GetSession(ctx context.Context, id string) (*domain.VoiceSession, error) {
	query := s.rebind(`SELECT ` + sessionColumns + ` FROM voice_sessions WHERE id = ?`)
	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// ListSessionsByUser returns a user's sessions, newest first.
func (s *sqlStore) ListSessionsByUser(ctx context.Context, userID string) ([]*domain.VoiceSession, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM voice_sessions WHERE user_id = ? ORDER BY started_at DESC`, userID)
}

// ListActiveSessionsByPhone returns active sessions for a phone number.
func (s *sqlStore) ListActiveSessionsByPhone(ctx context.Context, phoneNumber string) ([]*domain.VoiceSession, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM voice_sessions WHERE phone_number = ? AND status = ?`,
		phoneNumber, domain.StatusActive)
}

// SumDurationByPhone totals recorded duration seconds for a phone number.
func (s *sqlStore) SumDurationByPhone(ctx context.Context, phoneNumber string) (int, error) {
	query := s.rebind(`SELECT COALESCE(SUM(duration_seconds), 0) FROM voice_sessions WHERE phone_number = ?`)
	var total int64
	if err := s.db.QueryRowContext(ctx, query, phoneNumber).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum session duration: %w", err)
	}
	return int(total), nil
}

// ListSessions returns all sessions, newest first.
func (s *sqlStore) ListSessions(ctx context.Context) ([]*domain.VoiceSession, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM voice_sessions ORDER BY started_at DESC`)
}

// ListStaleActiveSessions returns active sessions started before the given time.
func (s *sqlStore) ListStaleActiveSessions(ctx context.Context, startedBefore time.Time) ([]*domain.VoiceSession, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM voice_sessions WHERE status = ? AND started_at < ? ORDER BY started_at ASC`,
		domain.StatusActive, toMillis(startedBefore))
}

// CompleteSession marks an active session completed in a single update.
func (s *sqlStore) CompleteSession(ctx context.Context, id string, endedAt time.Time, durationSeconds int, reason string) (bool, error) {
	query := s.rebind(`UPDATE voice_sessions
		SET status = ?, ended_at = ?, duration_seconds = ?, termination_reason = ?
		WHERE id = ? AND status = ?`)
	result, err := s.db.ExecContext(ctx, query,
		domain.StatusCompleted, toMillis(endedAt), durationSeconds, reason,
		id, domain.StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("complete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("CompleteSession affected 0 rows", "session_id", id)
		return false, nil
	}
	return true, nil
}

// ---- intent logs ----

const intentColumns = `id, user_id, session_id, intent_text, intent_type, captured_at`

func scanIntentLog(row rowScanner) (*domain.IntentLog, error) {
	var log domain.IntentLog
	var sessionID sql.NullString
	var capturedAt int64
	if err := row.Scan(&log.ID, &log.UserID, &sessionID, &log.IntentText, &log.IntentType, &capturedAt); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		log.SessionID = &sessionID.String
	}
	log.CapturedAt = fromMillis(capturedAt)
	return &log, nil
}

func (s *sqlStore) queryIntentLogs(ctx context.Context, query string, args ...any) ([]*domain.IntentLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query intent logs: %w", err)
	}
	defer closeRows(rows, "intent_logs")

	var logs []*domain.IntentLog
	for rows.Next() {
		log, err := scanIntentLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent log row: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent logs: %w", err)
	}
	return logs, nil
}

// CreateIntentLog inserts an intent log record.
func (s *sqlStore) CreateIntentLog(ctx context.Context, log *domain.IntentLog) error {
	if log.ID == "" {
		log.ID = newID()
	}
	log.CapturedAt = stamp(log.CapturedAt)

	var sessionID any
	if log.SessionID != nil {
		sessionID = *log.SessionID
	}

	query := s.rebind(`INSERT INTO intent_logs (` + intentColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		log.ID, log.UserID, sessionID, log.IntentText, log.IntentType, toMillis(log.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("insert intent log: %w", err)
	}
	return nil
}

// ListIntentLogsByUser returns up to limit of a user's intent logs, newest first.
func (s *sqlStore) ListIntentLogsByUser(ctx context.Context, userID string, limit int) ([]*domain.IntentLog, error) {
	return s.queryIntentLogs(ctx, `SELECT `+intentColumns+` FROM intent_logs WHERE user_id = ? ORDER BY captured_at DESC LIMIT ?`,
		userID, limit)
}

// ListIntentLogs returns all intent logs, newest first.
func (s *sqlStore) ListIntentLogs(ctx context.Context) ([]*domain.IntentLog, error) {
	return s.queryIntentLogs(ctx, `SELECT `+intentColumns+` FROM intent_logs ORDER BY captured_at DESC`)
}
