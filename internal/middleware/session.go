package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/pkg/state"
)

// SessionCookie is the cookie holding the session token.
const SessionCookie = "session"

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*state.User, error)
}

// SessionToken reads the token from the session cookie, falling back to
// an Authorization: Bearer header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireSession rejects requests without a valid session and stores the
// session user in the context.
func RequireSession(authn Authenticator, base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := authn.Authenticate(r.Context(), SessionToken(r))
			if err != nil {
				log := LoggerFrom(r.Context(), base)
				if errors.Is(err, auth.ErrUnauthenticated) {
					log.Debug("Session rejected", "error", err)
					writeError(w, log, http.StatusUnauthorized, "Not logged in")
					return
				}
				log.Error("Session lookup failed", "error", err)
				writeError(w, log, http.StatusInternalServerError, "Internal server error")
				return
			}
			ctx := context.WithValue(r.Context(), userKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the session user stored by RequireSession.
func UserFrom(ctx context.Context) (*state.User, bool) {
	u, ok := ctx.Value(userKey).(*state.User)
	return u, ok && u != nil
}

// WithUser stores u as the session user. Handler tests use it to skip
// token handling.
func WithUser(ctx context.Context, u *state.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		log.Error("Error encoding error response", "error", err)
	}
}
