package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agentdesk/agentdesk/internal/auth"
	"github.com/agentdesk/agentdesk/internal/model"
)

// SessionAuthenticator resolves a session token to an active session. A token
// that does not resolve yields an error matching auth.ErrUnauthenticated.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger        *slog.Logger
	Authenticator SessionAuthenticator
	CookieName    string
	// Fingerprint hashes the client IP in rejection logs.
	Fingerprint auth.Fingerprinter
}

// Auth rejects requests without a valid session and stores the session in
// the request context for handlers. Every rejected session gets the same 401
// body; a failing session lookup is a 500.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, source := sessionToken(r, cfg.CookieName)
			if token == "" {
				cfg.Logger.DebugContext(r.Context(), "request without session",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("route", routePattern(r)),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}

			ac, err := cfg.Authenticator.Authenticate(r.Context(), token)
			if err != nil {
				attrs := []any{
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("source", source),
					slog.String("client", cfg.Fingerprint.Sum(ClientIP(r))),
					slog.String("error", err.Error()),
				}
				if !errors.Is(err, auth.ErrUnauthenticated) {
					cfg.Logger.ErrorContext(r.Context(), "session lookup failed", attrs...)
					writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
					return
				}
				cfg.Logger.WarnContext(r.Context(), "session rejected", attrs...)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
				return
			}

			annotateUser(r.Context(), ac.UserID)
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), ac)))
		})
	}
}

// ExtractSessionToken returns the session token carried by r, preferring the
// session cookie over an "Authorization: Bearer" header.
func ExtractSessionToken(r *http.Request, cookieName string) string {
	token, _ := sessionToken(r, cookieName)
	return token
}

func sessionToken(r *http.Request, cookieName string) (token, source string) {
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, "cookie"
		}
	}

	scheme, credentials, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(credentials); token != "" {
			return token, "bearer"
		}
	}
	return "", ""
}
