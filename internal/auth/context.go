package auth

import (
	"context"
	"errors"

	"github.com/agentdesk/agentdesk/internal/model"
)

// ErrUnauthenticated reports a missing, expired or revoked session. Any other
// error from a session lookup is a backend failure.
var ErrUnauthenticated = errors.New("session is missing, expired or revoked")

type sessionKey struct{}

// WithSession returns a copy of ctx carrying the authenticated session.
func WithSession(ctx context.Context, ac *model.AuthContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, ac)
}

// SessionFrom returns the session stored by WithSession.
func SessionFrom(ctx context.Context) (*model.AuthContext, bool) {
	ac, ok := ctx.Value(sessionKey{}).(*model.AuthContext)
	return ac, ok && ac != nil
}

// UserID is the authenticated user, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if ac, ok := SessionFrom(ctx); ok {
		return ac.UserID
	}
	return ""
}
