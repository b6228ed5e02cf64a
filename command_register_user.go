package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterUserMessage creates one account. OnCreated runs inside the same
// transaction, after the insert, so callers can attach rows that must not
// outlive a failed registration.
type RegisterUserMessage struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	Password  string `json:"-"`
	UseHashid bool   `json:"-"`
	OnCreated func(ctx context.Context, tx bun.IDB, user *User) error
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo    RepositoryManager
	hasher  PasswordAuthenticator
	timeout time.Duration
}

func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordAuthenticator) *RegisterUserHandler {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &RegisterUserHandler{
		repo:    repo,
		hasher:  hasher,
		timeout: 10 * time.Second,
	}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			switch richErr.Category {
			case goerrors.CategoryBadInput:
				return nil, ErrPasswordTooShort
			case goerrors.CategoryValidation:
				return nil, richErr
			}
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		Name:         strings.TrimSpace(event.Name),
		Email:        NormalizeEmail(event.Email),
		Role:         event.Role,
		PasswordHash: hash,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		if event.OnCreated != nil {
			return event.OnCreated(ctx, tx, user)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return user, nil
}
