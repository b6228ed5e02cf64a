package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/pitchlink/authkit"
)

type serviceFixture struct {
	svc   *auth.Service
	repo  auth.RepositoryManager
	clock *testClock
	cache *memoryCache
	sink  *recordingSink
}

func newServiceFixture(t *testing.T, opts ...auth.ServiceOption) *serviceFixture {
	t.Helper()
	clock := newTestClock()
	repo := auth.NewRepositoryManager(newTestDB(t), auth.WithUsersClock(clock.Now))
	cache := newMemoryCache()
	sink := &recordingSink{}

	base := []auth.ServiceOption{
		auth.WithServiceClock(clock.Now),
		auth.WithServiceLogger(quietLogger{}),
		auth.WithSessionCache(cache),
		auth.WithActivitySink(sink),
	}

	return &serviceFixture{
		svc:   auth.NewService(newTestConfig(), repo, append(base, opts...)...),
		repo:  repo,
		clock: clock,
		cache: cache,
		sink:  sink,
	}
}

func janeSignUp() auth.SignUpCommand {
	return auth.SignUpCommand{
		Name:     "Jane Doe",
		Email:    "jane@x.com",
		Password: "secret123",
		Role:     auth.RoleInvestor,
	}
}

func TestServiceSignUpCreatesAccountAndSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	assert.NotEmpty(t, issued.Token)
	assert.True(t, issued.RememberMe)
	assert.Equal(t, "Jane Doe", issued.User.Name)
	assert.Equal(t, "jane@x.com", issued.User.Email)
	assert.Equal(t, auth.RoleInvestor, issued.User.Role)
	assert.False(t, issued.User.EmailVerified)
	assert.Equal(t, f.clock.Now().Add(auth.DefaultSessionMaxAge), issued.Session.ExpiresAt)

	stored, err := f.repo.Users().GetByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	require.NoError(t, auth.ComparePasswordAndHash("secret123", stored.PasswordHash))

	assert.Equal(t, 1, f.cache.Len())
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSignUpSuccess}, f.sink.Types())
}

func TestServiceSignUpDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	dup := janeSignUp()
	dup.Email = "JANE@x.com"
	dup.Name = "Jane Again"

	_, err = f.svc.SignUp(ctx, dup)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeUserAlreadyExists))
	assert.Equal(t, auth.KindRejection, auth.Classify(err))

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventSignUpSuccess,
		auth.ActivityEventSignUpRejected,
	}, f.sink.Types())
}

func TestServiceSignUpValidation(t *testing.T) {
	f := newServiceFixture(t)

	cmd := janeSignUp()
	cmd.Password = "short"

	_, err := f.svc.SignUp(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodePasswordTooShort))
	assert.Equal(t, auth.KindValidation, auth.Classify(err))

	_, err = f.repo.Users().GetByEmail(context.Background(), "jane@x.com")
	assert.Same(t, auth.ErrIdentityNotFound, err, "nothing is written when validation fails")
}

func TestServiceSignUpWithHashedIDs(t *testing.T) {
	f := newServiceFixture(t, auth.WithHashedUserIDs(true))

	issued, err := f.svc.SignUp(context.Background(), janeSignUp())
	require.NoError(t, err)

	id, err := uuid.Parse(issued.User.ID)
	require.NoError(t, err)

	stored, err := f.repo.Users().GetByID(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", stored.Email)
}

func TestServiceSignIn(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	issued, err := f.svc.SignIn(ctx, auth.SignInCommand{
		Email:       "Jane@X.com",
		Password:    "secret123",
		RememberMe:  false,
		CallbackURL: "/dashboard",
		IPAddress:   "10.0.0.1",
		UserAgent:   "test-agent",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Token)
	assert.False(t, issued.RememberMe)
	assert.Equal(t, "/dashboard", issued.CallbackURL)
	assert.Equal(t, "10.0.0.1", issued.Session.IPAddress)
	assert.Equal(t, "test-agent", issued.Session.UserAgent)

	user, err := f.repo.Users().GetByEmail(ctx, "jane@x.com")
	require.NoError(t, err)
	assert.NotNil(t, user.LoggedInAt)

	assert.Contains(t, f.sink.Types(), auth.ActivityEventLoginSuccess)
}

func TestServiceSignInWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, auth.SignInCommand{Email: "jane@x.com", Password: "wrongpass"})
	require.Error(t, err)
	assert.Same(t, auth.ErrInvalidCredentials, err)
	assert.Equal(t, auth.KindRejection, auth.Classify(err))

	_, err = f.svc.SignIn(ctx, auth.SignInCommand{Email: "nobody@x.com", Password: "wrongpass"})
	assert.Same(t, auth.ErrInvalidCredentials, err, "unknown emails look like wrong passwords")

	assert.Contains(t, f.sink.Types(), auth.ActivityEventLoginFailure)
}

func TestServiceSignInInfrastructureFailure(t *testing.T) {
	clock := newTestClock()
	db := newTestDB(t)
	repo := auth.NewRepositoryManager(db)
	sink := &recordingSink{}
	svc := auth.NewService(newTestConfig(), repo,
		auth.WithServiceClock(clock.Now),
		auth.WithServiceLogger(quietLogger{}),
		auth.WithActivitySink(sink),
	)

	require.NoError(t, db.Close())

	_, err := svc.SignIn(context.Background(), auth.SignInCommand{Email: "jane@x.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, auth.KindInfrastructure, auth.Classify(err))
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInternal))
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventAttemptFailed}, sink.Types())
}

func TestServiceGetSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	view, err := f.svc.GetSession(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, view.Session.ID)
	assert.Equal(t, "jane@x.com", view.User.Email)
	assert.Equal(t, auth.RoleInvestor, view.User.Role)
}

func TestServiceGetSessionFallsBackToDatabase(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	require.NoError(t, f.cache.Delete(ctx, issued.Session.ID))

	view, err := f.svc.GetSession(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.User.ID, view.User.ID)
	assert.Equal(t, 1, f.cache.Len(), "database hit repopulates the cache")
}

func TestServiceGetSessionIgnoresCacheErrors(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	f.cache.fail = errors.New("redis down")

	view, err := f.svc.GetSession(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.Session.ID, view.Session.ID)
}

func TestServiceGetSessionConcurrentLoads(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)
	require.NoError(t, f.cache.Delete(ctx, issued.Session.ID))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.GetSession(ctx, issued.Token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestServiceGetSessionExpired(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	f.clock.Advance(auth.DefaultSessionMaxAge + time.Minute)

	_, err = f.svc.GetSession(ctx, issued.Token)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSessionExpired))

	purged, err := f.svc.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestServiceGetSessionRejectsGarbage(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetSession(context.Background(), "")
	assert.Same(t, auth.ErrSessionNotFound, err)

	_, err = f.svc.GetSession(context.Background(), "garbage")
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidSession))
}

func TestServiceSignOutRevokesSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, issued.Token))
	assert.Equal(t, 0, f.cache.Len())

	_, err = f.svc.GetSession(ctx, issued.Token)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeSessionNotFound))
	assert.Contains(t, f.sink.Types(), auth.ActivityEventLogout)
}

func TestServiceSignOutLeavesOtherSessions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)
	second, err := f.svc.SignIn(ctx, auth.SignInCommand{Email: "jane@x.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, first.Token))

	view, err := f.svc.GetSession(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, second.Session.ID, view.Session.ID)
}

func TestServiceSocialSignInDisabledByDefault(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.SignInSocial(context.Background(), auth.SocialCommand{Provider: "google"})
	require.Error(t, err)
	assert.Same(t, auth.ErrProviderNotFound, err)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSocialRejected}, f.sink.Types())
}

func TestServiceSocialSignIn(t *testing.T) {
	f := newServiceFixture(t, auth.WithSocialProvider(auth.OAuthProvider{
		ProviderName: "google",
		AuthorizeURL: "https://accounts.google.com/o/oauth2/v2/auth",
		ClientID:     "client-id",
		RedirectURI:  "http://localhost:3000/api/auth/callback/google",
		Scopes:       []string{"openid", "email"},
	}))

	redirect, err := f.svc.SignInSocial(context.Background(), auth.SocialCommand{
		Provider:    "Google",
		CallbackURL: "/dashboard",
	})
	require.NoError(t, err)
	assert.True(t, redirect.Redirect)
	assert.True(t, strings.HasPrefix(redirect.URL, "https://accounts.google.com/o/oauth2/v2/auth?"))
	assert.Contains(t, redirect.URL, "client_id=client-id")
	assert.Contains(t, redirect.URL, "scope=openid+email")
	assert.Equal(t, []string{"google"}, f.svc.Providers().Names())
}

func TestServiceHonorsCancelledContext(t *testing.T) {
	f := newServiceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.SignUp(ctx, janeSignUp())
	require.Error(t, err)
	assert.Equal(t, auth.KindInfrastructure, auth.Classify(err))

	_, err = f.repo.Users().GetByEmail(context.Background(), "jane@x.com")
	assert.Same(t, auth.ErrIdentityNotFound, err)
}

func TestServiceGetSessionAfterRowDeleted(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.SignUp(ctx, janeSignUp())
	require.NoError(t, err)
	require.NoError(t, f.cache.Delete(ctx, issued.Session.ID))

	sid := uuid.MustParse(issued.Session.ID)
	require.NoError(t, f.repo.Sessions().Revoke(ctx, sid))

	_, err = f.svc.GetSession(ctx, issued.Token)
	assert.Same(t, auth.ErrSessionNotFound, err)
}

func TestServiceSignInNormalizesEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	cmd := janeSignUp()
	cmd.Email = " Jane@X.com "
	_, err := f.svc.SignUp(ctx, cmd)
	require.NoError(t, err)

	issued, err := f.svc.SignIn(ctx, auth.SignInCommand{
		Email:    " Jane@X.com ",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", issued.User.Email)
}

func TestServiceGetSessionLoadOutlivesCallerContext(t *testing.T) {
	f := newServiceFixture(t)

	issued, err := f.svc.SignUp(context.Background(), janeSignUp())
	require.NoError(t, err)
	require.NoError(t, f.cache.Delete(context.Background(), issued.Session.ID))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		ctx := context.Background()
		if i%2 == 0 {
			ctx = cancelled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.GetSession(ctx, issued.Token)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.cache.Len())
}
