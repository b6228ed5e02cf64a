package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// MinPasswordLength shortest accepted password
	MinPasswordLength = 8
	// MaxPasswordLength longest accepted password, bcrypt ignores anything past 72 bytes
	MaxPasswordLength = 72
	// DefaultCallbackURL where users land after signing in
	DefaultCallbackURL = "/dashboard"
	// LoginPath is the sign in page, also the landing page after signing up
	LoginPath = "/login"
)

// Credentials is the transient email and password pair typed by the user
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInCommand is the email and password sign in request
type SignInCommand struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callbackURL,omitempty"`
	RememberMe  bool   `json:"rememberMe"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

func (c SignInCommand) Type() string { return "auth.sign_in.email" }

// Credentials returns the email and password pair
func (c SignInCommand) Credentials() Credentials {
	return Credentials{Email: c.Email, Password: c.Password}
}

// Validate will run validation rules
func (c SignInCommand) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email,
			validation.Required.Error("Email is required"),
			is.EmailFormat.Error("Invalid email"),
		),
		validation.Field(&c.Password,
			validation.Required.Error("Password is required"),
		),
	)
	if err == nil {
		return nil
	}

	code := TextCodeValidation
	if fieldFailed(err, "email") {
		code = TextCodeInvalidEmail
	}
	return validationError(err, code, "email", "password")
}

// SignUpCommand is the email and password sign up request
type SignUpCommand struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
	CallbackURL string `json:"callbackURL,omitempty"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

func (c SignUpCommand) Type() string { return "auth.sign_up.email" }

// Validate will validate the payload. Confirmation is a form concern and
// never reaches the service.
func (c SignUpCommand) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Name,
			validation.Required.Error("Name is required"),
			validation.Length(1, 200),
		),
		validation.Field(&c.Email,
			validation.Required.Error("Email is required"),
			is.EmailFormat.Error("Invalid email"),
		),
		validation.Field(&c.Password,
			validation.Required.Error("Password is required"),
			validation.Length(MinPasswordLength, 0).Error("Password too short"),
			validation.Length(0, MaxPasswordLength).Error("Password too long"),
		),
		validation.Field(&c.Role,
			validation.Required.Error("Role is required"),
			validation.In(RoleValues()...).Error("Role must be startup or investor"),
		),
	)
	if err == nil {
		return nil
	}

	code := TextCodeValidation
	switch {
	case fieldFailed(err, "email"):
		code = TextCodeInvalidEmail
	case fieldFailed(err, "password") && len(c.Password) > MaxPasswordLength:
		code = TextCodePasswordTooLong
	case fieldFailed(err, "password") && c.Password != "":
		code = TextCodePasswordTooShort
	}
	return validationError(err, code, "name", "email", "password", "role")
}

// SocialCommand asks for a provider authorization URL
type SocialCommand struct {
	Provider           string `json:"provider"`
	CallbackURL        string `json:"callbackURL,omitempty"`
	ErrorCallbackURL   string `json:"errorCallbackURL,omitempty"`
	NewUserCallbackURL string `json:"newUserCallbackURL,omitempty"`
	DisableRedirect    bool   `json:"disableRedirect,omitempty"`
}

func (c SocialCommand) Type() string { return "auth.sign_in.social" }

func (c SocialCommand) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Provider, validation.Required.Error("Provider is required")),
	)
	if err == nil {
		return nil
	}
	return validationError(err, TextCodeValidation, "provider")
}

// ValidateStringEquals will validate that both strings are equal
func ValidateStringEquals(str string, message ...string) validation.RuleFunc {
	msg := "values must match"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New(msg)
		}
		return nil
	}
}

// NormalizeEmail lower cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func fieldFailed(err error, field string) bool {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return false
	}
	return verrs[field] != nil
}

// validationError converts ozzo errors into a rich validation error whose
// message is the first failing field in order.
func validationError(err error, textCode string, order ...string) error {
	richErr := goerrors.FromOzzoValidation(err, "Invalid request")
	fields := richErr.ValidationMap()
	for _, field := range order {
		if msg, ok := fields[field]; ok {
			richErr.Message = msg
			break
		}
	}
	return richErr.WithTextCode(textCode).WithCode(goerrors.CodeBadRequest)
}
