package form

import (
	"context"
	"net/url"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/client"
)

// CallbackQueryKey is the login page query parameter naming the post login target
const CallbackQueryKey = "callbackUrl"

type LoginForm struct {
	submitGuard

	Email       string
	Password    string
	CallbackURL string

	facade   Facade
	nav      Navigator
	notifier Notifier
	opts     options
}

// NewLoginForm builds a login form for the page at pageURL. The callbackUrl
// query parameter, when it is a local path, becomes the post login target.
func NewLoginForm(pageURL string, facade Facade, nav Navigator, notifier Notifier, opts ...Option) *LoginForm {
	return &LoginForm{
		CallbackURL: CallbackFromPageURL(pageURL),
		facade:      facade,
		nav:         nav,
		notifier:    notifier,
		opts:        newOptions(opts),
	}
}

// CallbackFromPageURL extracts callbackUrl from a page URL
func CallbackFromPageURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return auth.DefaultCallbackURL
	}
	return auth.SanitizeCallbackURL(u.Query().Get(CallbackQueryKey), auth.DefaultCallbackURL)
}

// SocialEnabled reports whether the Google button should be shown
func (f *LoginForm) SocialEnabled() bool {
	return f.opts.social
}

// Submit signs in with the current field values. The error is also
// surfaced through the Notifier, callers only need it for flow control.
func (f *LoginForm) Submit(ctx context.Context) error {
	return f.run(f.notifier, f.opts.logger, func() error {
		_, err := f.facade.SignInWithPassword(ctx, client.SignInRequest{
			Email:       f.Email,
			Password:    f.Password,
			CallbackURL: f.CallbackURL,
		})
		if err != nil {
			f.opts.logger.Debug("sign in failed", "email", f.Email, "kind", auth.Classify(err), "error", err)
			f.notifier.Error(errorMessage(err))
			return err
		}

		f.nav.Push(f.CallbackURL)
		return nil
	})
}

func (f *LoginForm) SignInWithGoogle(ctx context.Context) error {
	if !f.opts.social {
		return ErrSocialLoginDisabled
	}
	return signInWithGoogle(ctx, &f.submitGuard, f.facade, f.nav, f.notifier, f.opts.logger, client.SocialRequest{
		Provider:           "google",
		CallbackURL:        f.CallbackURL,
		ErrorCallbackURL:   f.CallbackURL,
		NewUserCallbackURL: f.CallbackURL,
	})
}

func signInWithGoogle(ctx context.Context, g *submitGuard, facade Facade, nav Navigator, notifier Notifier, logger auth.Logger, req client.SocialRequest) error {
	return g.run(notifier, logger, func() error {
		redirect, err := facade.SignInWithProvider(ctx, req)
		if err != nil {
			logger.Debug("social sign in failed", "provider", req.Provider, "error", err)
			notifier.Error(GoogleFailedMessage)
			return err
		}
		nav.Push(redirect.URL)
		return nil
	})
}
