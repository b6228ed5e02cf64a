package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// SessionLocalsKey is where RequireSession stores the resolved session in the request locals
const SessionLocalsKey = "auth_session"

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession sets the resolved session in the given context
func WithSession(ctx context.Context, view *SessionView) context.Context {
	return context.WithValue(ctx, sessionCtxKey, view)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*SessionView, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(sessionCtxKey).(*SessionView)
	return raw, ok && raw != nil
}

// SessionFromLocals extracts the session stored by RequireSession
func SessionFromLocals(c router.Context) (*SessionView, bool) {
	raw, ok := c.Locals(SessionLocalsKey).(*SessionView)
	return raw, ok && raw != nil
}

// UserFromContext returns the signed in user, if any
func UserFromContext(ctx context.Context) (SessionUser, bool) {
	view, ok := SessionFromContext(ctx)
	if !ok {
		return SessionUser{}, false
	}
	return view.User, true
}

// HasRole reports whether the session in ctx belongs to a user with role
func HasRole(ctx context.Context, role Role) bool {
	user, ok := UserFromContext(ctx)
	return ok && user.Role == role
}
