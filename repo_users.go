package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the user account store
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock injects the clock used for timestamps
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := &users{
		Repository: repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
			NewRecord: func() *User { return &User{} },
			GetID: func(u *User) uuid.UUID {
				if u == nil {
					return uuid.Nil
				}
				return u.ID
			},
			SetID: func(u *User, id uuid.UUID) {
				if u != nil {
					u.ID = id
				}
			},
			GetIdentifier: func() string {
				return "email"
			},
			GetIdentifierValue: func(u *User) string {
				if u == nil {
					return ""
				}
				return u.Email
			},
			ResolveIdentifier: func(identifier string) []repository.IdentifierOption {
				if _, err := uuid.Parse(identifier); err == nil {
					return []repository.IdentifierOption{{Column: "id", Value: identifier}}
				}
				return []repository.IdentifierOption{{Column: "email", Value: NormalizeEmail(identifier)}}
			},
		}),
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *users) Validate() error {
	if v, ok := a.Repository.(repository.Validator); ok {
		return v.Validate()
	}
	return nil
}

func (a *users) MustValidate() {
	if err := a.Validate(); err != nil {
		panic(err)
	}
}

func (a *users) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id, criteria...)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*User, error) {
	record, err := a.Repository.GetByIDTx(ctx, tx, id, criteria...)
	if err != nil {
		return nil, userLookupError(err, "id", id)
	}
	return record, nil
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record, err := a.Repository.GetTx(ctx, tx, selectByEmail(email))
	if err != nil {
		return nil, userLookupError(err, "email", email)
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	a.prepareUserDefaults(record)

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user").
			WithCode(goerrors.CodeInternal)
	}
	return created, nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	prevLoggedIn, prevUpdated := user.LoggedInAt, user.UpdatedAt

	loggedInAt := a.now().UTC()
	user.LoggedInAt = &loggedInAt
	user.UpdatedAt = loggedInAt

	if _, err := a.Repository.UpdateTx(ctx, tx, user,
		repository.UpdateColumns("loggedin_at", "updated_at"),
	); err != nil {
		user.LoggedInAt, user.UpdatedAt = prevLoggedIn, prevUpdated
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to track login")
	}
	return nil
}

func (a *users) prepareUserDefaults(record *User) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Email = NormalizeEmail(record.Email)
	now := a.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
}

// selectByEmail matches the normalized form of email
func selectByEmail(email string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.email = ?", NormalizeEmail(email))
	}
}

func userLookupError(err error, column, value string) error {
	if repository.IsRecordNotFound(err) {
		return ErrIdentityNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user").
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{column: value})
}
