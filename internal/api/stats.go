package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StatsHandler serves the dashboard and admin aggregates.
type StatsHandler struct {
	*Handler
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(base *Handler) *StatsHandler {
	return &StatsHandler{Handler: base}
}

// RegisterRoutes registers stats routes.
func (h *StatsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard/stats", h.Dashboard)
	r.Get("/admin/stats", h.Admin)
	r.Get("/admin/export", h.Export)
}

// Dashboard returns the dashboard aggregate.
func (h *StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.stats.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("dashboard stats: %w", err))
		return
	}
	JSON(w, http.StatusOK, d)
}

// Admin returns the admin aggregate.
func (h *StatsHandler) Admin(w http.ResponseWriter, r *http.Request) {
	a, err := h.stats.Admin(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("admin stats: %w", err))
		return
	}
	JSON(w, http.StatusOK, a)
}

// Export streams every session as a CSV attachment.
func (h *StatsHandler) Export(w http.ResponseWriter, r *http.Request) {
	body, err := h.stats.ExportCSV(r.Context())
	if err != nil {
		h.writeError(w, r, fmt.Errorf("export sessions: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+h.stats.ExportFilename()+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		slog.Debug("Failed to write export", "error", err)
	}
}
