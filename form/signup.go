package form

import (
	"context"
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/client"
)

// MinPasswordLength matches the service side minimum
const MinPasswordLength = auth.MinPasswordLength

// FieldErrors maps a field name to the message shown next to it
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+fe[field])
	}
	return strings.Join(parts, "; ")
}

type SignupForm struct {
	submitGuard

	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Confirm  string    `json:"confirm"`
	Role     auth.Role `json:"role"`

	fieldErrs FieldErrors
	facade    Facade
	nav       Navigator
	notifier  Notifier
	opts      options
}

func NewSignupForm(facade Facade, nav Navigator, notifier Notifier, opts ...Option) *SignupForm {
	return &SignupForm{
		facade:   facade,
		nav:      nav,
		notifier: notifier,
		opts:     newOptions(opts),
	}
}

// Roles lists the role selector options
func (f *SignupForm) Roles() []auth.Role {
	return auth.GetAllRoles()
}

// Errors returns the field errors from the last Validate or Submit
func (f *SignupForm) Errors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fieldErrs
}

func (f *SignupForm) setErrors(errs FieldErrors) {
	f.mu.Lock()
	f.fieldErrs = errs
	f.mu.Unlock()
}

func (f *SignupForm) SocialEnabled() bool {
	return f.opts.social
}

// Validate checks the fields and returns nil when they are all valid
func (f *SignupForm) Validate() FieldErrors {
	err := validation.ValidateStruct(f,
		validation.Field(&f.Name,
			validation.Required.Error("Name is required"),
		),
		validation.Field(&f.Email,
			validation.Required.Error("Invalid email address"),
			is.EmailFormat.Error("Invalid email address"),
		),
		validation.Field(&f.Password,
			validation.Required.Error("Password must be at least 8 characters"),
			validation.Length(MinPasswordLength, 0).Error("Password must be at least 8 characters"),
		),
		validation.Field(&f.Confirm,
			validation.Required.Error("Confirm your password"),
			validation.Length(MinPasswordLength, 0).Error("Confirm your password"),
			validation.By(auth.ValidateStringEquals(f.Password, "Passwords do not match")),
		),
		validation.Field(&f.Role,
			validation.Required.Error("Please select a role"),
			validation.In(auth.RoleValues()...).Error("Please select a role"),
		),
	)
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return FieldErrors{"form": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for field, ferr := range verrs {
		out[field] = ferr.Error()
	}
	return out
}

// Submit validates the form and, when valid, creates the account. Invalid
// input is returned as FieldErrors without calling the facade. A Submit made
// while another is pending returns ErrSubmitInFlight and leaves Errors as is.
func (f *SignupForm) Submit(ctx context.Context) error {
	return f.run(f.notifier, f.opts.logger, func() error {
		fieldErrs := f.Validate()
		f.setErrors(fieldErrs)
		if len(fieldErrs) > 0 {
			return fieldErrs
		}

		_, err := f.facade.SignUpWithPassword(ctx, client.SignUpRequest{
			Name:        f.Name,
			Email:       f.Email,
			Password:    f.Password,
			Role:        f.Role,
			CallbackURL: Links.Dashboard,
		})
		if err != nil {
			f.opts.logger.Debug("sign up failed", "email", f.Email, "kind", auth.Classify(err), "error", err)
			f.notifier.Error(errorMessage(err))
			return err
		}

		f.notifier.Success(SignupSuccessMessage)
		f.nav.Push(Links.Login)
		return nil
	})
}

func (f *SignupForm) SignInWithGoogle(ctx context.Context) error {
	if !f.opts.social {
		return ErrSocialLoginDisabled
	}
	return signInWithGoogle(ctx, &f.submitGuard, f.facade, f.nav, f.notifier, f.opts.logger, client.SocialRequest{
		Provider:           "google",
		CallbackURL:        Links.Dashboard,
		ErrorCallbackURL:   Links.Login,
		NewUserCallbackURL: Links.Dashboard,
	})
}
