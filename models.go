package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Name          string     `bun:"name,notnull" json:"name"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	EmailVerified bool       `bun:"email_verified,notnull" json:"emailVerified"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Role          Role       `bun:"role,notnull" json:"role"`
	LoggedInAt    *time.Time `bun:"loggedin_at,nullzero" json:"-"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}

// SessionRecord is the persisted side of an issued session. The signed
// token handed to the client references it through its ID.
type SessionRecord struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userId"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	IPAddress     string    `bun:"ip_address" json:"ipAddress,omitempty"`
	UserAgent     string    `bun:"user_agent" json:"userAgent,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Expired reports whether the session is past its expiry at now
func (s *SessionRecord) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// Identity is the view of u embedded in session tokens
func (u *User) Identity() Identity {
	return userIdentity{u}
}

type userIdentity struct {
	user *User
}

func (i userIdentity) ID() string    { return i.user.ID.String() }
func (i userIdentity) Name() string  { return i.user.Name }
func (i userIdentity) Email() string { return i.user.Email }
func (i userIdentity) Role() string  { return i.user.Role.String() }
