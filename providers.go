package auth

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SocialState is handed to a provider when building its authorization URL
type SocialState struct {
	State              string
	CallbackURL        string
	ErrorCallbackURL   string
	NewUserCallbackURL string
}

// SocialRedirect is the outcome of a social sign in request
type SocialRedirect struct {
	URL      string `json:"url"`
	Redirect bool   `json:"redirect"`
}

// SocialProvider starts a third party sign in flow
type SocialProvider interface {
	Name() string
	AuthorizationURL(ctx context.Context, state SocialState) (string, error)
}

// ProviderRegistry holds the enabled social providers. It is empty by
// default, so social sign in answers PROVIDER_NOT_FOUND.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]SocialProvider
}

func NewProviderRegistry(providers ...SocialProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: map[string]SocialProvider{}}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *ProviderRegistry) Register(p SocialProvider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = p
}

func (r *ProviderRegistry) Get(name string) (SocialProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Names lists registered providers in alphabetical order
func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OAuthProvider builds a standard authorization code URL
type OAuthProvider struct {
	ProviderName string
	AuthorizeURL string
	ClientID     string
	RedirectURI  string
	Scopes       []string
}

func (p OAuthProvider) Name() string {
	return p.ProviderName
}

func (p OAuthProvider) AuthorizationURL(_ context.Context, state SocialState) (string, error) {
	u, err := url.Parse(p.AuthorizeURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", goerrors.New("invalid authorize url for provider "+p.ProviderName, goerrors.CategoryInternal).
			WithCode(goerrors.CodeInternal)
	}

	if state.State == "" {
		state.State = uuid.NewString()
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("state", state.State)
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
