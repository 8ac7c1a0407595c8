// Package app wires the store, voice provider, services and HTTP router
// shared by the server and Lambda entrypoints.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"

	"github.com/voiceos/backend/internal/api"
	"github.com/voiceos/backend/internal/config"
	"github.com/voiceos/backend/internal/identity"
	"github.com/voiceos/backend/internal/live"
	"github.com/voiceos/backend/internal/middleware"
	"github.com/voiceos/backend/internal/session"
	"github.com/voiceos/backend/internal/stats"
	"github.com/voiceos/backend/internal/store"
	"github.com/voiceos/backend/internal/voice"
	"github.com/voiceos/backend/web"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Config   *config.Config
	Repo     store.Repository
	Sessions *session.Manager
	Stats    *stats.Aggregator
	Hub      *live.Hub
	Router   http.Handler
}

// New opens the configured store and builds the router. The caller owns the
// returned App and must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	repo, err := store.Open(store.Options{
		Driver:      cfg.Database.Driver,
		SQLitePath:  cfg.Database.Path,
		DatabaseURL: cfg.Database.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "driver", cfg.Database.Driver)

	provider := voice.NewClient(voice.Config{
		APIKey:  cfg.Voice.APIKey,
		BaseURL: cfg.Voice.BaseURL,
		Model:   cfg.Voice.Model,
		Voice:   cfg.Voice.Voice,
		Timeout: cfg.Voice.Timeout,
	})
	if cfg.Voice.APIKey == "" {
		slog.Warn("VOICE_API_KEY not set, session start will fail")
	}

	return build(cfg, repo, provider, clockwork.NewRealClock())
}

// build assembles services and routes around an open repository.
func build(cfg *config.Config, repo store.Repository, provider voice.Provider, clk clockwork.Clock) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("stats timezone: %w", err)
	}

	sessions := session.NewManager(repo, provider, clk, cfg.Session.Cap)
	agg := stats.NewAggregator(repo, clk, loc)
	hub := live.NewHub()

	a := &App{
		Config:   cfg,
		Repo:     repo,
		Sessions: sessions,
		Stats:    agg,
		Hub:      hub,
	}
	a.Router = a.routes(clk)
	return a, nil
}

func (a *App) routes(clk clockwork.Clock) http.Handler {
	cfg := a.Config
	base := api.NewHandler(a.Repo, a.Sessions, a.Stats, a.Hub, clk, cfg.IsDevelopment())
	liveHandler := live.NewStatusHandler(a.Sessions, a.Hub, live.DefaultInterval, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(a.Repo))

	// Liveness probe.
	r.Get("/health", api.Liveness)

	r.Route("/api", func(r chi.Router) {
		base.RegisterRoutes(r, liveHandler)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	return r
}

// StartReaper ends abandoned sessions in the background until ctx is done
// and closes their live streams.
func (a *App) StartReaper(ctx context.Context) {
	session.StartReaper(ctx, a.Sessions, a.Config.Session.ReaperInterval, a.Config.Session.ReaperGrace, a.Hub.Close)
}

// Close releases the repository.
func (a *App) Close() error {
	return a.Repo.Close()
}
