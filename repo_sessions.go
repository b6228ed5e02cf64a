package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions is the persisted session store
type Sessions interface {
	repository.Repository[*SessionRecord]

	// Revoke deletes the session row with id. Revoking a missing row is not an error.
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	// DeleteExpired removes every row whose expires_at is at or before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessions struct {
	repository.Repository[*SessionRecord]
	db *bun.DB
}

var (
	_ Sessions                              = (*sessions)(nil)
	_ repository.Repository[*SessionRecord] = (*sessions)(nil)
)

func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{
		Repository: repository.NewRepository[*SessionRecord](db, repository.ModelHandlers[*SessionRecord]{
			NewRecord: func() *SessionRecord { return &SessionRecord{} },
			GetID: func(record *SessionRecord) uuid.UUID {
				if record == nil {
					return uuid.Nil
				}
				return record.ID
			},
			SetID: func(record *SessionRecord, id uuid.UUID) {
				if record != nil {
					record.ID = id
				}
			},
		}),
		db: db,
	}
}

func (s *sessions) Validate() error {
	if v, ok := s.Repository.(repository.Validator); ok {
		return v.Validate()
	}
	return nil
}

func (s *sessions) MustValidate() {
	if err := s.Validate(); err != nil {
		panic(err)
	}
}

func (s *sessions) Create(ctx context.Context, record *SessionRecord, criteria ...repository.InsertCriteria) (*SessionRecord, error) {
	return s.CreateTx(ctx, s.db, record, criteria...)
}

func (s *sessions) CreateTx(ctx context.Context, tx bun.IDB, record *SessionRecord, criteria ...repository.InsertCriteria) (*SessionRecord, error) {
	created, err := s.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create session").
			WithCode(goerrors.CodeInternal)
	}
	return created, nil
}

func (s *sessions) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*SessionRecord, error) {
	return s.GetByIDTx(ctx, s.db, id, criteria...)
}

func (s *sessions) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*SessionRecord, error) {
	record, err := s.Repository.GetByIDTx(ctx, tx, id, criteria...)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve session").
			WithCode(goerrors.CodeInternal)
	}
	return record, nil
}

func (s *sessions) Revoke(ctx context.Context, id uuid.UUID) error {
	return s.RevokeTx(ctx, s.db, id)
}

func (s *sessions) RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if err := s.Repository.DeleteWhereTx(ctx, tx, repository.DeleteByID(id.String())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete session")
	}
	return nil
}

func (s *sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Apply(deleteExpiredBy(now)).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// deleteExpiredBy matches rows expiring at or before now
func deleteExpiredBy(now time.Time) repository.DeleteCriteria {
	return func(q *bun.DeleteQuery) *bun.DeleteQuery {
		return q.Where("?TableAlias.expires_at <= ?", now.UTC())
	}
}
