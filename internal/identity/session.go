package identity

import (
	"context"
	"strings"

	"storefront/internal/models"
)

// Session is the caller identity handed to the orchestrator explicitly.
// A zero Session means nobody is signed in.
type Session struct {
	UserID string
	Email  string
	Role   string
}

func (s Session) Authenticated() bool {
	return strings.TrimSpace(s.UserID) != ""
}

func (s Session) IsAdmin() bool {
	return s.Authenticated() && s.Role == models.RoleAdmin
}

// Owns reports whether the session may act on a resource owned by userID.
func (s Session) Owns(userID string) bool {
	return s.Authenticated() && (s.UserID == userID || s.IsAdmin())
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session stored by the auth middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
