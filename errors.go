package auth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeInvalidCredentials = "INVALID_EMAIL_OR_PASSWORD"
	TextCodeUserAlreadyExists  = "USER_ALREADY_EXISTS"
	TextCodeInvalidEmail       = "INVALID_EMAIL"
	TextCodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	TextCodePasswordTooLong    = "PASSWORD_TOO_LONG"
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeInvalidSession     = "INVALID_SESSION"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeEmptyValue         = "EMPTY_VALUE"
	TextCodeInternal           = "INTERNAL_SERVER_ERROR"
)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike
var ErrInvalidCredentials = goerrors.New("Invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserAlreadyExists is returned when signing up with a registered email
var ErrUserAlreadyExists = goerrors.New("User already exists. Use another email.", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserAlreadyExists).
	WithCode(goerrors.CodeConflict)

// ErrInvalidEmail malformed email address
var ErrInvalidEmail = goerrors.New("Invalid email", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordTooShort password under MinPasswordLength
var ErrPasswordTooShort = goerrors.New("Password too short", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordTooShort).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordTooLong password over MaxPasswordLength
var ErrPasswordTooLong = goerrors.New("Password too long", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordTooLong).
	WithCode(goerrors.CodeBadRequest)

// ErrProviderNotFound no social provider registered under the requested name
var ErrProviderNotFound = goerrors.New("Provider not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSessionNotFound the request carried no session or it was revoked
var ErrSessionNotFound = goerrors.New("Session not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired the session exists but is past its expiry
var ErrSessionExpired = goerrors.New("Session expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidSession the session token could not be decoded or verified
var ErrInvalidSession = goerrors.New("Invalid session token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptyValue).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword password does not match the stored hash
var ErrMismatchedHashAndPassword = goerrors.New("identity auth: password mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrorKind is the coarse taxonomy callers use to decide how to surface an error
type ErrorKind int

const (
	// KindInfrastructure covers network, storage and unexpected failures
	KindInfrastructure ErrorKind = iota
	// KindValidation malformed input, shown next to the offending field
	KindValidation
	// KindRejection well formed input the service refused
	KindRejection
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRejection:
		return "rejection"
	default:
		return "infrastructure"
	}
}

// Classify maps any error onto an ErrorKind
func Classify(err error) ErrorKind {
	if err == nil {
		return KindInfrastructure
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindInfrastructure
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return KindValidation
	case goerrors.CategoryAuth, goerrors.CategoryAuthz,
		goerrors.CategoryConflict, goerrors.CategoryNotFound:
		return KindRejection
	default:
		return KindInfrastructure
	}
}

// HasTextCode reports whether err is a rich error carrying code.
// Wrapping a rich error clones it, so identity checks with errors.Is
// only work on the unwrapped sentinel.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// AsRichError returns err as a *goerrors.Error, wrapping plain errors as internal.
func AsRichError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "request cancelled").
			WithCode(goerrors.CodeRequestTimeout)
	}

	return internalError(err)
}

// internalError hides err behind a generic message while keeping it as Source.
func internalError(err error) *goerrors.Error {
	richErr := goerrors.New("Something went wrong", goerrors.CategoryInternal).
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
	richErr.Source = err
	return richErr
}

// isUniqueViolation matches duplicate key errors from postgres and sqlite,
// either raw from the driver or mapped by the repository layer.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	if repository.IsDuplicatedKey(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	for e := err; e != nil; e = goerrors.Unwrap(e) {
		if strings.Contains(strings.ToLower(e.Error()), "unique constraint failed") {
			return true
		}
	}
	return false
}

const pgUniqueViolation = "23505"
