package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/voiceos/backend/internal/config"
	"github.com/voiceos/backend/internal/voice"
)

type stubProvider struct{}

func (stubProvider) CreateCall(context.Context, voice.CallRequest) (*voice.Call, error) {
	return &voice.Call{CallID: "c1", JoinURL: "wss://join/c1"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:          "0",
		AppEnv:        "development",
		StatsTimezone: "UTC",
		Database:      config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "voiceos.db")},
		Voice:         config.VoiceConfig{Timeout: time.Second},
		Session:       config.SessionConfig{Cap: 600 * time.Second, ReaperInterval: time.Minute, ReaperGrace: time.Minute},
	}
}

func TestNewServesRoutes(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/api/health", http.StatusOK},
		{"/api/dashboard/stats", http.StatusOK},
		{"/api/admin/stats", http.StatusOK},
		{"/api/sessions/missing", http.StatusNotFound},
		{"/", http.StatusOK},
		{"/dashboard", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		w := httptest.NewRecorder()
		a.Router.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.want, w.Code)
		}
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestCORSPreflight(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions/start", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestReaperClosesAbandonedSessions(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(start)
	a, err = build(cfg, a.Repo, stubProvider{}, clk)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	body := `{"email":"a@x.com","mobile":"555","countryCode":"+1"}`
	signup := httptest.NewRecorder()
	a.Router.ServeHTTP(signup, httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body)))
	if signup.Code != http.StatusOK {
		t.Fatalf("signup: %d %s", signup.Code, signup.Body.String())
	}
	users, _ := a.Repo.ListUsers(context.Background())

	started := httptest.NewRecorder()
	a.Router.ServeHTTP(started, httptest.NewRequest(http.MethodPost, "/api/sessions/start",
		strings.NewReader(`{"userId":"`+users[0].ID+`"}`)))
	if started.Code != http.StatusOK {
		t.Fatalf("start: %d %s", started.Code, started.Body.String())
	}

	clk.Advance(cfg.Session.Cap + cfg.Session.ReaperGrace + time.Second)
	if n := a.Sessions.ReapStale(context.Background(), cfg.Session.ReaperGrace, a.Hub.Close); n != 1 {
		t.Fatalf("expected 1 reaped session, got %d", n)
	}

	sessions, _ := a.Repo.ListSessions(context.Background())
	if len(sessions) != 1 || sessions[0].IsActive() || sessions[0].Reason() != "cap_exceeded" {
		t.Errorf("expected reaped session to be completed with cap_exceeded, got %+v", sessions)
	}
}
