package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`PRAGMA busy_timeout = 5000`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		mobile TEXT NOT NULL,
		country_code TEXT NOT NULL DEFAULT '+91',
		role TEXT NOT NULL DEFAULT 'user',
		created_at INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
	`CREATE INDEX IF NOT EXISTS idx_users_mobile ON users(mobile, country_code)`,
	`CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		intent TEXT NOT NULL,
		agent_name TEXT NOT NULL,
		personality TEXT NOT NULL,
		tone TEXT NOT NULL,
		domain TEXT NOT NULL,
		objective TEXT NOT NULL,
		risk_sensitivity TEXT NOT NULL,
		emotional_calibration TEXT NOT NULL,
		communication_style TEXT NOT NULL,
		domain_context TEXT NOT NULL,
		conversation_rules TEXT NOT NULL,
		risk_flags TEXT NOT NULL,
		closing_goal TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS voice_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		agent_id TEXT,
		phone_number TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_seconds INTEGER,
		termination_reason TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_phone ON voice_sessions(phone_number) WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_phone ON voice_sessions(phone_number)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON voice_sessions(user_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS intent_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT,
		intent_text TEXT NOT NULL,
		intent_type TEXT NOT NULL,
		captured_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_intent_logs_user ON intent_logs(user_id, captured_at)`,
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := newSQLStore(db, false)
	if err := store.initSchema(sqliteSchema); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}
