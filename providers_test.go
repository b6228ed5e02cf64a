package auth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/pitchlink/authkit"
)

func TestProviderRegistry(t *testing.T) {
	reg := auth.NewProviderRegistry()
	assert.Empty(t, reg.Names())

	_, err := reg.Get("google")
	assert.Same(t, auth.ErrProviderNotFound, err)

	reg.Register(auth.OAuthProvider{ProviderName: "Google"})
	reg.Register(auth.OAuthProvider{ProviderName: "github"})
	reg.Register(nil)

	p, err := reg.Get(" GOOGLE ")
	require.NoError(t, err)
	assert.Equal(t, "Google", p.Name())
	assert.Equal(t, []string{"github", "google"}, reg.Names())
}

func TestOAuthProviderAuthorizationURL(t *testing.T) {
	p := auth.OAuthProvider{
		ProviderName: "google",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth?prompt=select_account",
		ClientID:     "abc",
		RedirectURI:  "http://localhost:3000/api/auth/callback/google",
		Scopes:       []string{"openid", "email", "profile"},
	}

	raw, err := p.AuthorizationURL(context.Background(), auth.SocialState{State: "state-1"})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "abc", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/api/auth/callback/google", q.Get("redirect_uri"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "select_account", q.Get("prompt"))
}

func TestOAuthProviderGeneratesState(t *testing.T) {
	p := auth.OAuthProvider{ProviderName: "google", AuthorizeURL: "https://example.com/auth"}

	raw, err := p.AuthorizationURL(context.Background(), auth.SocialState{})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, u.Query().Get("state"))
}

func TestOAuthProviderInvalidURL(t *testing.T) {
	p := auth.OAuthProvider{ProviderName: "broken", AuthorizeURL: "/relative"}

	_, err := p.AuthorizationURL(context.Background(), auth.SocialState{})
	require.Error(t, err)
	assert.Equal(t, auth.KindInfrastructure, auth.Classify(err))
}
