package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/pitchlink/authkit"
)

func testIdentity() auth.Identity {
	user := &auth.User{
		ID:    uuid.New(),
		Name:  "Jane Doe",
		Email: "jane@x.com",
		Role:  auth.RoleInvestor,
	}
	return user.Identity()
}

func newTokenService(clock *testClock) auth.TokenService {
	return auth.NewTokenService(
		[]byte("token-secret"),
		"http://localhost:3000",
		jwt.ClaimStrings{"http://localhost:3000"},
		quietLogger{},
		auth.WithTokenClock(clock.Now),
	)
}

func TestTokenServiceRoundTrip(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)
	identity := testIdentity()
	sid := uuid.NewString()
	expires := clock.Now().Add(30 * 24 * time.Hour)

	token, err := ts.Generate(identity, sid, clock.Now(), expires)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, sid, claims.SessionID())
	assert.Equal(t, identity.ID(), claims.UserID())
	assert.Equal(t, "investor", claims.Role())
	assert.Equal(t, "jane@x.com", claims.Email)
	assert.Equal(t, expires.Unix(), claims.Expires().Unix())
	assert.Equal(t, clock.Now().Unix(), claims.IssuedAt().Unix())
}

func TestTokenServiceExpired(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	token, err := ts.Generate(testIdentity(), uuid.NewString(), clock.Now(), clock.Now().Add(time.Hour))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSessionExpired))
	assert.Equal(t, auth.KindRejection, auth.Classify(err))
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)
	other := auth.NewTokenService([]byte("other-secret"), "http://localhost:3000",
		jwt.ClaimStrings{"http://localhost:3000"}, quietLogger{}, auth.WithTokenClock(clock.Now))

	token, err := other.Generate(testIdentity(), uuid.NewString(), clock.Now(), clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidSession))

	_, err = ts.Validate("not-a-token")
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidSession))
}

func TestTokenServiceRejectsWrongIssuer(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)
	other := auth.NewTokenService([]byte("token-secret"), "https://evil.example.com",
		jwt.ClaimStrings{"http://localhost:3000"}, quietLogger{}, auth.WithTokenClock(clock.Now))

	token, err := other.Generate(testIdentity(), uuid.NewString(), clock.Now(), clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidSession))
}

func TestTokenServiceRequiresSessionID(t *testing.T) {
	clock := newTestClock()
	ts := newTokenService(clock)

	token, err := ts.Generate(testIdentity(), "", clock.Now(), clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.Same(t, auth.ErrInvalidSession, err)
}

func TestTokenServiceEmptyToken(t *testing.T) {
	ts := newTokenService(newTestClock())
	_, err := ts.Validate("")
	assert.Same(t, auth.ErrSessionNotFound, err)
}
