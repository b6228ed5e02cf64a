// Package database opens the bun handle shared by every repository and
// applies the embedded migrations.
package database

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/pitchlink/authkit"
	"github.com/pitchlink/authkit/internal/config"
)

// IsPostgres reports whether dsn points at a postgres server
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to dsn and verifies the connection. Postgres URLs go through
// pgx; everything else is treated as a sqlite data source.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)

	if IsPostgres(dsn) {
		db, err = openPostgres(dsn)
	} else {
		db, err = openSQLite(ctx, dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "database ping failed")
	}

	return db, nil
}

func openPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "db open error")
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite:")

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "db open error")
	}
	// sqlite serializes writers; a single connection also keeps :memory:
	// databases alive across queries.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "enable sqlite foreign keys")
	}
	return db, nil
}

// Migrate applies every pending migration
func Migrate(ctx context.Context, db *bun.DB) ([]*goose.MigrationResult, error) {
	d := goose.DialectSQLite3
	if db.Dialect().Name() == dialect.PG {
		d = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(d, db.DB, auth.GetMigrationsFS())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return results, goerrors.Wrap(err, goerrors.CategoryInternal, "migration error")
	}
	return results, nil
}

// Registry hands out database handles. In development one handle per DSN is
// reused for the life of the process; in production every call opens a new
// handle that the caller owns.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*bun.DB
	open    func(ctx context.Context, dsn string) (*bun.DB, error)
}

func NewRegistry() *Registry {
	return &Registry{
		handles: map[string]*bun.DB{},
		open:    Open,
	}
}

// Get returns the handle for cfg, opening it on first use
func (r *Registry) Get(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	dsn := cfg.DatabaseURI()
	if cfg.IsProduction() {
		return r.open(ctx, dsn)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.handles[dsn]; ok {
		return db, nil
	}

	db, err := r.open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	r.handles[dsn] = db
	return db, nil
}

// Close closes every cached handle
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for dsn, db := range r.handles {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.handles, dsn)
	}
	return goerrors.Join(errs...)
}

var shared = NewRegistry()

// Shared returns the process wide handle for cfg
func Shared(ctx context.Context, cfg *config.Config) (*bun.DB, error) {
	return shared.Get(ctx, cfg)
}

// CloseShared closes handles created through Shared
func CloseShared() error {
	return shared.Close()
}
