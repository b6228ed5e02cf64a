// Package form holds the headless login and signup forms.
//
// A form owns its field values, runs local validation, forwards the
// submission to a Facade and then either navigates or shows a notification.
// Rendering is left to the caller: a web handler, a TUI, or cmd/authcli.
package form

import (
	"context"
	"fmt"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/client"
)

const (
	GenericErrorMessage  = client.GenericErrorMessage
	SignupSuccessMessage = "Account created. Please verify your email to sign in."
	GoogleFailedMessage  = "Google login failed"
)

// Links are the static navigation targets shown around the forms
var Links = struct {
	Dashboard      string
	Login          string
	Signup         string
	ForgotPassword string
	Terms          string
	Privacy        string
}{
	Dashboard:      auth.DefaultCallbackURL,
	Login:          "/login",
	Signup:         "/signup",
	ForgotPassword: "/forgot-password",
	Terms:          "/terms",
	Privacy:        "/privacy",
}

// ErrSubmitInFlight is returned when a form is submitted while a request is pending
var ErrSubmitInFlight = goerrors.New("a request is already in progress", goerrors.CategoryOperation).
	WithTextCode("SUBMIT_IN_FLIGHT").
	WithCode(goerrors.CodeConflict)

// ErrSocialLoginDisabled is returned by SignInWithGoogle unless WithSocialLogin(true)
var ErrSocialLoginDisabled = goerrors.New("social login is disabled", goerrors.CategoryOperation).
	WithTextCode("SOCIAL_LOGIN_DISABLED").
	WithCode(goerrors.CodeForbidden)

// Facade is the subset of client.Client the forms call
type Facade interface {
	SignInWithPassword(ctx context.Context, req client.SignInRequest) (*client.Session, error)
	SignUpWithPassword(ctx context.Context, req client.SignUpRequest) (*client.Session, error)
	SignInWithProvider(ctx context.Context, req client.SocialRequest) (*client.Redirect, error)
}

// Navigator moves the user to another page
type Navigator interface {
	Push(path string)
}

// Notifier shows transient messages
type Notifier interface {
	Success(message string)
	Error(message string)
}

type Option func(*options)

type options struct {
	social bool
	logger auth.Logger
}

// WithSocialLogin enables the Google button
func WithSocialLogin(enabled bool) Option {
	return func(o *options) {
		o.social = enabled
	}
}

// WithLogger sets the logger used for development diagnostics
func WithLogger(logger auth.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// submitGuard allows one request at a time and tracks the loading flag
type submitGuard struct {
	mu      sync.Mutex
	loading bool
}

// Loading reports whether a request is in flight
func (g *submitGuard) Loading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

func (g *submitGuard) begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loading {
		return false
	}
	g.loading = true
	return true
}

func (g *submitGuard) end() {
	g.mu.Lock()
	g.loading = false
	g.mu.Unlock()
}

// run executes fn under the guard. A panic in fn is reported through
// notifier as a generic failure and returned as an error.
func (g *submitGuard) run(notifier Notifier, logger auth.Logger, fn func() error) (err error) {
	if !g.begin() {
		return ErrSubmitInFlight
	}
	defer g.end()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("form submission panicked", "panic", r)
			err = goerrors.New(GenericErrorMessage, goerrors.CategoryInternal).
				WithTextCode(auth.TextCodeInternal).
				WithMetadata(map[string]any{"panic": fmt.Sprint(r)})
			notifier.Error(GenericErrorMessage)
		}
	}()

	return fn()
}

// errorMessage is the text shown for a failed submission
func errorMessage(err error) string {
	if richErr := auth.AsRichError(err); richErr != nil && richErr.Message != "" {
		return richErr.Message
	}
	return GenericErrorMessage
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
