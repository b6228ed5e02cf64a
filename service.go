package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/sync/singleflight"
)

// DefaultSessionMaxAge is the session lifetime when none is configured
const DefaultSessionMaxAge = 30 * 24 * time.Hour

// ServiceOption customizes the Service
type ServiceOption func(*Service)

func WithServiceLogger(l Logger) ServiceOption {
	return func(s *Service) {
		s.logger = normalizeLogger(l)
	}
}

func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithSessionCache(cache SessionCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithServiceClock injects the clock used for sessions and attempts
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSocialProvider(p SocialProvider) ServiceOption {
	return func(s *Service) {
		s.providers.Register(p)
	}
}

// WithHashedUserIDs derives user ids from the email instead of random uuids
func WithHashedUserIDs(enabled bool) ServiceOption {
	return func(s *Service) {
		s.useHashid = enabled
	}
}

func WithTokenService(ts TokenService) ServiceOption {
	return func(s *Service) {
		if ts != nil {
			s.tokens = ts
		}
	}
}

// Service validates credentials, manages accounts and issues sessions.
// Every public operation runs one Attempt through the AttemptMachine and
// returns only its final outcome.
type Service struct {
	repo        RepositoryManager
	tokens      TokenService
	hasher      PasswordAuthenticator
	identities  IdentityProvider
	register    *RegisterUserHandler
	attempts    *AttemptMachine
	cache       SessionCache
	providers   *ProviderRegistry
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
	maxAge      time.Duration
	cacheMaxAge time.Duration
	useHashid   bool
	loads       singleflight.Group
}

func NewService(cfg Config, repo RepositoryManager, opts ...ServiceOption) *Service {
	repo.MustValidate()

	s := &Service{
		repo:        repo,
		hasher:      BcryptHasher{Cost: cfg.GetPasswordCost()},
		cache:       NoopSessionCache{},
		providers:   NewProviderRegistry(),
		activity:    noopActivitySink{},
		logger:      defLogger{},
		now:         time.Now,
		maxAge:      cfg.GetSessionMaxAge(),
		cacheMaxAge: cfg.GetSessionCacheMaxAge(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.maxAge <= 0 {
		s.maxAge = DefaultSessionMaxAge
	}
	if s.cacheMaxAge <= 0 || s.cacheMaxAge > s.maxAge {
		s.cacheMaxAge = s.maxAge
	}

	if s.tokens == nil {
		s.tokens = NewTokenService(
			[]byte(cfg.GetSigningKey()),
			cfg.GetIssuer(),
			jwt.ClaimStrings(cfg.GetAudience()),
			s.logger,
			WithTokenClock(s.now),
		)
	}

	s.identities = NewUserProvider(repo.Users()).WithLogger(s.logger).WithHasher(s.hasher)
	s.register = NewRegisterUserHandler(repo, s.hasher)
	s.attempts = NewAttemptMachine(
		WithAttemptClock(s.now),
		WithAttemptHook(s.onAttemptTransition),
	)

	return s
}

// Providers exposes the social provider registry
func (s *Service) Providers() *ProviderRegistry {
	return s.providers
}

// SignUp creates the account and signs the new user in
func (s *Service) SignUp(ctx context.Context, cmd SignUpCommand) (*IssuedSession, error) {
	attempt := s.attempts.Start(AttemptSignUp, cmd.Email)
	if err := s.attempts.Advance(ctx, attempt, AttemptSubmitted, AttemptValidating); err != nil {
		return nil, err
	}

	cmd.Email = NormalizeEmail(cmd.Email)
	if err := cmd.Validate(); err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	if err := s.attempts.Advance(ctx, attempt, AttemptValidated, AttemptCreating); err != nil {
		return nil, err
	}

	var (
		record *SessionRecord
		token  string
	)
	user, err := s.register.Execute(ctx, RegisterUserMessage{
		Name:      cmd.Name,
		Email:     cmd.Email,
		Role:      cmd.Role,
		Password:  cmd.Password,
		UseHashid: s.useHashid,
		OnCreated: func(ctx context.Context, tx bun.IDB, user *User) error {
			var err error
			record, token, err = s.createSession(ctx, tx, user, cmd.IPAddress, cmd.UserAgent)
			return err
		},
	})
	if err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	attempt.UserID = user.ID.String()
	issued := s.finishIssue(ctx, record, user, token)
	issued.RememberMe = true
	issued.CallbackURL = cmd.CallbackURL

	if err := s.attempts.Transition(ctx, attempt, AttemptIssued); err != nil {
		return nil, err
	}

	return issued, nil
}

// SignIn verifies email and password and issues a session
func (s *Service) SignIn(ctx context.Context, cmd SignInCommand) (*IssuedSession, error) {
	attempt := s.attempts.Start(AttemptSignIn, cmd.Email)
	if err := s.attempts.Advance(ctx, attempt, AttemptSubmitted, AttemptValidating); err != nil {
		return nil, err
	}

	cmd.Email = NormalizeEmail(cmd.Email)
	if err := cmd.Validate(); err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	if err := s.attempts.Advance(ctx, attempt, AttemptValidated, AttemptAuthenticating); err != nil {
		return nil, err
	}

	user, err := s.identities.VerifyIdentity(ctx, cmd.Email, cmd.Password)
	if err != nil {
		return nil, s.settle(ctx, attempt, err)
	}
	attempt.UserID = user.ID.String()

	var (
		record *SessionRecord
		token  string
	)
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, token, err = s.createSession(ctx, tx, user, cmd.IPAddress, cmd.UserAgent)
		return err
	})
	if err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	issued := s.finishIssue(ctx, record, user, token)
	issued.RememberMe = cmd.RememberMe
	issued.CallbackURL = cmd.CallbackURL

	if err := s.attempts.Transition(ctx, attempt, AttemptIssued); err != nil {
		return nil, err
	}

	return issued, nil
}

// SignInSocial returns the authorization URL of a registered provider
func (s *Service) SignInSocial(ctx context.Context, cmd SocialCommand) (*SocialRedirect, error) {
	attempt := s.attempts.Start(AttemptSocial, "")
	if err := s.attempts.Advance(ctx, attempt, AttemptSubmitted, AttemptValidating); err != nil {
		return nil, err
	}

	if err := cmd.Validate(); err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	if err := s.attempts.Advance(ctx, attempt, AttemptValidated, AttemptAuthenticating); err != nil {
		return nil, err
	}

	provider, err := s.providers.Get(cmd.Provider)
	if err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	target, err := provider.AuthorizationURL(ctx, SocialState{
		State:              attempt.ID,
		CallbackURL:        cmd.CallbackURL,
		ErrorCallbackURL:   cmd.ErrorCallbackURL,
		NewUserCallbackURL: cmd.NewUserCallbackURL,
	})
	if err != nil {
		return nil, s.settle(ctx, attempt, err)
	}

	if err := s.attempts.Transition(ctx, attempt, AttemptIssued); err != nil {
		return nil, err
	}

	return &SocialRedirect{URL: target, Redirect: !cmd.DisableRedirect}, nil
}

// GetSession resolves a session token, preferring the session cache
func (s *Service) GetSession(ctx context.Context, token string) (*SessionView, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	sid := claims.SessionID()
	now := s.now()

	view, ok, err := s.cache.Get(ctx, sid)
	if err != nil {
		s.logger.Warn("session cache read failed", "session", sid, "error", err)
	}
	if err == nil && ok {
		if view.User.ID != claims.UserID() {
			return nil, ErrInvalidSession
		}
		if view.Expired(now) {
			s.evict(ctx, sid)
			return nil, ErrSessionExpired
		}
		return view, nil
	}

	// one load serves every caller waiting on sid, so a caller that goes
	// away must not cancel it for the rest
	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := s.loads.Do(sid, func() (any, error) {
		return s.loadSession(loadCtx, sid, claims.UserID())
	})
	if err != nil {
		return nil, err
	}
	return res.(*SessionView), nil
}

// SignOut revokes the session behind token
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return err
	}

	sid, err := uuid.Parse(claims.SessionID())
	if err != nil {
		return ErrInvalidSession
	}

	if err := s.repo.Sessions().Revoke(ctx, sid); err != nil {
		return err
	}
	s.evict(ctx, sid.String())

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    claims.UserID(),
	})
	return nil
}

// PurgeExpiredSessions deletes session rows past their expiry
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repo.Sessions().DeleteExpired(ctx, s.now())
}

func (s *Service) loadSession(ctx context.Context, sid, uid string) (*SessionView, error) {
	id, err := uuid.Parse(sid)
	if err != nil {
		return nil, ErrInvalidSession
	}

	record, err := s.repo.Sessions().GetByID(ctx, id.String())
	if err != nil {
		return nil, err
	}

	if record.UserID.String() != uid {
		return nil, ErrInvalidSession
	}

	now := s.now()
	if record.Expired(now) {
		if err := s.repo.Sessions().Delete(ctx, record); err != nil {
			s.logger.Warn("failed to delete expired session", "session", sid, "error", err)
		}
		s.evict(ctx, sid)
		return nil, ErrSessionExpired
	}

	user, err := s.repo.Users().GetByID(ctx, record.UserID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	view := newSessionView(record, user)
	s.store(ctx, view, now)
	return view, nil
}

func (s *Service) createSession(ctx context.Context, tx bun.IDB, user *User, ip, agent string) (*SessionRecord, string, error) {
	now := s.now().UTC()
	record := &SessionRecord{
		ID:        uuid.New(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.maxAge),
		IPAddress: ip,
		UserAgent: agent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.repo.Sessions().CreateTx(ctx, tx, record); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Generate(user.Identity(), record.ID.String(), now, record.ExpiresAt)
	if err != nil {
		return nil, "", err
	}

	return record, token, nil
}

func (s *Service) finishIssue(ctx context.Context, record *SessionRecord, user *User, token string) *IssuedSession {
	view := newSessionView(record, user)
	s.store(ctx, view, s.now())
	return &IssuedSession{
		SessionView: *view,
		Token:       token,
	}
}

func (s *Service) store(ctx context.Context, view *SessionView, now time.Time) {
	ttl := view.Session.ExpiresAt.Sub(now)
	if ttl > s.cacheMaxAge {
		ttl = s.cacheMaxAge
	}
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, view, ttl); err != nil {
		s.logger.Warn("session cache write failed", "session", view.Session.ID, "error", err)
	}
}

func (s *Service) evict(ctx context.Context, sid string) {
	if err := s.cache.Delete(ctx, sid); err != nil {
		s.logger.Warn("session cache delete failed", "session", sid, "error", err)
	}
}

// settle moves the attempt to rejected or failed depending on err and
// returns the error the caller should see.
func (s *Service) settle(ctx context.Context, attempt *Attempt, err error) error {
	if Classify(err) != KindInfrastructure {
		if terr := s.attempts.Reject(ctx, attempt, err); terr != nil {
			return terr
		}
		return err
	}

	s.logger.Error("auth attempt failed",
		"attempt", attempt.ID,
		"kind", string(attempt.Kind),
		"error", err,
	)
	if terr := s.attempts.Fail(ctx, attempt, err); terr != nil {
		return terr
	}
	return internalError(err)
}

func (s *Service) onAttemptTransition(ctx context.Context, attempt *Attempt, tr AttemptTransition) {
	s.logger.Debug("auth attempt transition",
		"attempt", attempt.ID,
		"kind", string(attempt.Kind),
		"from", string(tr.From),
		"to", string(tr.To),
	)

	if !tr.To.IsTerminal() {
		return
	}

	eventType, ok := activityFor(attempt.Kind, tr.To)
	if !ok {
		return
	}

	event := ActivityEvent{
		EventType:  eventType,
		AttemptID:  attempt.ID,
		UserID:     attempt.UserID,
		Email:      attempt.Email,
		State:      tr.To,
		OccurredAt: tr.At,
	}
	if cause := attempt.Err(); cause != nil {
		event.Metadata = map[string]any{"error": cause.Error()}
	}
	s.recordActivity(ctx, event)
}

func (s *Service) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error", "event", string(event.EventType), "error", err)
	}
}
