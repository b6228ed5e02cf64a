package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSignUpSuccess  ActivityEventType = "auth.signup.success"
	ActivityEventSignUpRejected ActivityEventType = "auth.signup.rejected"
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventSocialLogin    ActivityEventType = "auth.social.login"
	ActivityEventSocialRejected ActivityEventType = "auth.social.rejected"
	ActivityEventAttemptFailed  ActivityEventType = "auth.attempt.failed"
	ActivityEventLogout         ActivityEventType = "auth.logout"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	AttemptID  string
	UserID     string
	Email      string
	State      AttemptState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggerActivitySink writes every event to a Logger at info level.
type LoggerActivitySink struct {
	Logger Logger
}

func (l LoggerActivitySink) Record(_ context.Context, event ActivityEvent) error {
	normalizeLogger(l.Logger).Info("auth activity",
		"event", string(event.EventType),
		"attempt", event.AttemptID,
		"user_id", event.UserID,
		"state", string(event.State),
	)
	return nil
}

// activityFor picks the event reported when an attempt reaches a terminal state
func activityFor(kind AttemptKind, state AttemptState) (ActivityEventType, bool) {
	switch state {
	case AttemptFailed:
		return ActivityEventAttemptFailed, true
	case AttemptIssued:
		switch kind {
		case AttemptSignUp:
			return ActivityEventSignUpSuccess, true
		case AttemptSignIn:
			return ActivityEventLoginSuccess, true
		case AttemptSocial:
			return ActivityEventSocialLogin, true
		}
	case AttemptRejected:
		switch kind {
		case AttemptSignUp:
			return ActivityEventSignUpRejected, true
		case AttemptSignIn:
			return ActivityEventLoginFailure, true
		case AttemptSocial:
			return ActivityEventSocialRejected, true
		}
	}
	return "", false
}
