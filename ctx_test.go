package auth_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"

	auth "github.com/pitchlink/authkit"
)

func TestSessionContext(t *testing.T) {
	_, ok := auth.SessionFromContext(context.Background())
	assert.False(t, ok)

	_, ok = auth.UserFromContext(context.Background())
	assert.False(t, ok)
	assert.False(t, auth.HasRole(context.Background(), auth.RoleInvestor))

	ctx := auth.WithSession(context.Background(), sampleView())

	view, ok := auth.SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "Jane Doe", view.User.Name)

	user, ok := auth.UserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "jane@x.com", user.Email)

	assert.True(t, auth.HasRole(ctx, auth.RoleInvestor))
	assert.False(t, auth.HasRole(ctx, auth.RoleStartup))
}

func TestSessionContextIgnoresNilView(t *testing.T) {
	ctx := auth.WithSession(context.Background(), nil)
	_, ok := auth.SessionFromContext(ctx)
	assert.False(t, ok)
}

func TestSessionFromLocals(t *testing.T) {
	ctx := router.NewMockContext()

	_, ok := auth.SessionFromLocals(ctx)
	assert.False(t, ok)

	ctx.LocalsMock[auth.SessionLocalsKey] = sampleView()
	view, ok := auth.SessionFromLocals(ctx)
	assert.True(t, ok)
	assert.Equal(t, "Jane Doe", view.User.Name)
}

func TestClientIP(t *testing.T) {
	ctx := router.NewMockContext()
	assert.Empty(t, auth.ClientIP(ctx))

	ctx.HeadersM["X-Real-Ip"] = "10.0.0.9"
	assert.Equal(t, "10.0.0.9", auth.ClientIP(ctx))

	ctx.HeadersM["X-Forwarded-For"] = "203.0.113.7, 10.0.0.1"
	assert.Equal(t, "203.0.113.7", auth.ClientIP(ctx))

	ctx.LocalsMock[auth.ClientIPLocalsKey] = "198.51.100.4"
	assert.Equal(t, "198.51.100.4", auth.ClientIP(ctx))
}
