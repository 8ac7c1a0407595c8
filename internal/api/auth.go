package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/intent"
	"github.com/voiceos/backend/internal/shared"
)

// AuthHandler handles signup and login. There are no credentials; users
// are looked up by email or mobile number.
type AuthHandler struct {
	*Handler
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *Handler) *AuthHandler {
	return &AuthHandler{Handler: base}
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/signup", h.Signup)
	r.Post("/auth/login", h.Login)
}

type signupRequest struct {
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	CountryCode string `json:"countryCode"`
	Intent      string `json:"intent"`
}

type userResponse struct {
	User *domain.User `json:"user"`
}

// Signup returns the user with the given email, creating it on first use.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.CountryCode = strings.TrimSpace(req.CountryCode)

	if req.Email == "" || req.Mobile == "" {
		h.writeError(w, r, fmt.Errorf("%w: email and mobile are required", domain.ErrValidation))
		return
	}
	if strings.ContainsRune(req.Email+req.Mobile+req.CountryCode, ',') {
		h.writeError(w, r, fmt.Errorf("%w: email and mobile must not contain commas", domain.ErrValidation))
		return
	}
	if req.CountryCode == "" {
		req.CountryCode = domain.DefaultCountryCode
	}

	ctx := r.Context()
	user, created, err := h.findOrCreateUser(ctx, &domain.User{
		Email:       req.Email,
		Mobile:      req.Mobile,
		CountryCode: req.CountryCode,
		Role:        domain.RoleUser,
		CreatedAt:   h.clock.Now(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if created {
		slog.Info("User signed up", "user_id", user.ID)
	}

	if text := strings.TrimSpace(req.Intent); text != "" {
		h.logIntent(ctx, user.ID, text)
	}

	JSON(w, http.StatusOK, userResponse{User: user})
}

// findOrCreateUser returns the existing user with the same email or inserts
// candidate. A concurrent signup that wins the unique email index is re-read.
func (h *AuthHandler) findOrCreateUser(ctx context.Context, candidate *domain.User) (*domain.User, bool, error) {
	existing, err := h.repo.GetUserByEmail(ctx, candidate.Email)
	if err != nil {
		return nil, false, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := h.repo.CreateUser(ctx, candidate); err != nil {
		if !shared.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		existing, err = h.repo.GetUserByEmail(ctx, candidate.Email)
		if err != nil || existing == nil {
			return nil, false, fmt.Errorf("reload user after conflict: %w", err)
		}
		return existing, false, nil
	}
	return candidate, true, nil
}

// logIntent records an intent captured outside agent generation. Failure is
// logged and does not fail the request.
func (h *Handler) logIntent(ctx context.Context, userID, text string) {
	entry := &domain.IntentLog{
		UserID:     userID,
		IntentText: text,
		IntentType: intent.Domain(text),
		CapturedAt: h.clock.Now(),
	}
	if err := h.repo.CreateIntentLog(ctx, entry); err != nil {
		slog.Warn("Failed to record intent", "error", err, "user_id", userID)
	}
}

type loginRequest struct {
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	CountryCode string `json:"countryCode"`
}

// Login looks a user up by email, or by mobile and country code.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.CountryCode = strings.TrimSpace(req.CountryCode)

	var (
		user *domain.User
		err  error
	)
	switch {
	case req.Email != "":
		user, err = h.repo.GetUserByEmail(r.Context(), req.Email)
	case req.Mobile != "":
		if req.CountryCode == "" {
			req.CountryCode = domain.DefaultCountryCode
		}
		user, err = h.repo.GetUserByMobile(r.Context(), req.Mobile, req.CountryCode)
	default:
		h.writeError(w, r, fmt.Errorf("%w: email or mobile is required", domain.ErrValidation))
		return
	}
	if err != nil {
		h.writeError(w, r, fmt.Errorf("lookup user: %w", err))
		return
	}
	if user == nil {
		h.writeError(w, r, fmt.Errorf("%w: user not found", domain.ErrNotFound))
		return
	}

	JSON(w, http.StatusOK, userResponse{User: user})
}
