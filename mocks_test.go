package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/internal/database"
)

// testConfig implements auth.Config
type testConfig struct {
	secret      string
	maxAge      time.Duration
	cacheMaxAge time.Duration
	secure      bool
}

func newTestConfig() testConfig {
	return testConfig{
		secret:      "test-secret-test-secret-test-secret",
		maxAge:      30 * 24 * time.Hour,
		cacheMaxAge: 30 * 24 * time.Hour,
	}
}

func (c testConfig) GetSigningKey() string { return c.secret }
func (c testConfig) GetIssuer() string { return "http://localhost:3000" }
func (c testConfig) GetAudience() []string { return []string{"http://localhost:3000"} }
func (c testConfig) GetSessionMaxAge() time.Duration { return c.maxAge }
func (c testConfig) GetSessionCacheMaxAge() time.Duration { return c.cacheMaxAge }
func (c testConfig) GetCookieName() string { return auth.DefaultCookieName }
func (c testConfig) GetSecureCookies() bool { return c.secure }
func (c testConfig) GetPasswordCost() int { return 4 }

// newTestDB opens a private in-memory sqlite database with migrations applied
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(ctx, db)
	require.NoError(t, err)

	return db
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockUserTracker implements auth.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockAuthService implements auth.AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) SignUp(ctx context.Context, cmd auth.SignUpCommand) (*auth.IssuedSession, error) {
	args := m.Called(ctx, cmd)
	if s := args.Get(0); s != nil {
		return s.(*auth.IssuedSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthService) SignIn(ctx context.Context, cmd auth.SignInCommand) (*auth.IssuedSession, error) {
	args := m.Called(ctx, cmd)
	if s := args.Get(0); s != nil {
		return s.(*auth.IssuedSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthService) SignInSocial(ctx context.Context, cmd auth.SocialCommand) (*auth.SocialRedirect, error) {
	args := m.Called(ctx, cmd)
	if s := args.Get(0); s != nil {
		return s.(*auth.SocialRedirect), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthService) GetSession(ctx context.Context, token string) (*auth.SessionView, error) {
	args := m.Called(ctx, token)
	if s := args.Get(0); s != nil {
		return s.(*auth.SessionView), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthService) SignOut(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// memoryCache is a SessionCache backed by a map
type memoryCache struct {
	mu    sync.Mutex
	items map[string]auth.SessionView
	gets  int
	fail  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string]auth.SessionView{}}
}

func (c *memoryCache) Get(_ context.Context, sid string) (*auth.SessionView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail != nil {
		return nil, false, c.fail
	}
	v, ok := c.items[sid]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *memoryCache) Set(_ context.Context, view *auth.SessionView, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.items[view.Session.ID] = *view
	return nil
}

func (c *memoryCache) Delete(_ context.Context, sid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, sid)
	return nil
}

func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// quietLogger drops everything
type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any) {}
func (quietLogger) Warn(string, ...any) {}
func (quietLogger) Error(string, ...any) {}
