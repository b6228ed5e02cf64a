package auth

import (
	"context"
	"fmt"
	"time"
)

// SessionUser is the public projection of a User
type SessionUser struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SessionInfo is the public projection of a SessionRecord
type SessionInfo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// SessionView is a resolved session with its user
type SessionView struct {
	Session SessionInfo `json:"session"`
	User    SessionUser `json:"user"`
}

// Expired reports whether the session is past its expiry at now
func (v *SessionView) Expired(now time.Time) bool {
	return v == nil || !now.Before(v.Session.ExpiresAt)
}

func (v SessionView) String() string {
	return fmt.Sprintf("session=%s user=%s role=%s exp=%s",
		v.Session.ID,
		v.User.ID,
		v.User.Role,
		v.Session.ExpiresAt.Format(time.RFC3339),
	)
}

// IssuedSession is the outcome of a successful sign up or sign in
type IssuedSession struct {
	SessionView
	Token       string `json:"token"`
	RememberMe  bool   `json:"-"`
	CallbackURL string `json:"-"`
}

// SessionCache holds resolved sessions so lookups can skip the database
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (*SessionView, bool, error)
	Set(ctx context.Context, view *SessionView, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// NoopSessionCache never stores anything
type NoopSessionCache struct{}

func (NoopSessionCache) Get(context.Context, string) (*SessionView, bool, error) {
	return nil, false, nil
}

func (NoopSessionCache) Set(context.Context, *SessionView, time.Duration) error {
	return nil
}

func (NoopSessionCache) Delete(context.Context, string) error {
	return nil
}

func newSessionView(record *SessionRecord, user *User) *SessionView {
	return &SessionView{
		Session: SessionInfo{
			ID:        record.ID.String(),
			UserID:    record.UserID.String(),
			ExpiresAt: record.ExpiresAt,
			CreatedAt: record.CreatedAt,
			IPAddress: record.IPAddress,
			UserAgent: record.UserAgent,
		},
		User: SessionUser{
			ID:            user.ID.String(),
			Name:          user.Name,
			Email:         user.Email,
			EmailVerified: user.EmailVerified,
			Role:          user.Role,
			CreatedAt:     user.CreatedAt,
		},
	}
}
