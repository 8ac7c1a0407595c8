// Package identity resolves the calling user from request headers.
package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/voiceos/backend/internal/domain"
	"github.com/voiceos/backend/internal/store"
)

// UserHeaderName carries the ID of a previously signed-up user.
const UserHeaderName = "X-VoiceOS-User-ID"

type contextKey int

const (
	userIDKey contextKey = iota
	userKey
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UserFromContext extracts the resolved user from the request context.
func UserFromContext(ctx context.Context) *domain.User {
	if v, ok := ctx.Value(userKey).(*domain.User); ok {
		return v
	}
	return nil
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, userIDKey, user.ID)
	return context.WithValue(ctx, userKey, user)
}

// ResolveUserID returns explicit when set, otherwise the user resolved from
// the request header.
func ResolveUserID(r *http.Request, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return UserIDFromContext(r.Context())
}

func userIDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(UserHeaderName))
	if id == "" || !userIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// Middleware injects the user named by the X-VoiceOS-User-ID header. Requests
// without the header, or naming an unknown user, pass through anonymously;
// handlers then require an explicit userId.
func Middleware(repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := userIDFromRequest(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := repo.GetUser(r.Context(), userID)
			if err != nil {
				slog.Error("Failed to resolve user from header", "error", err, "user_id", userID)
				http.Error(w, `{"error":"failed to resolve user"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				slog.Debug("Unknown user in header", "user_id", userID, "ip", IPFromRequest(r))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
