package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchlink/authkit/internal/config"
	"github.com/pitchlink/authkit/internal/database"
)

func TestIsPostgres(t *testing.T) {
	assert.True(t, database.IsPostgres("postgres://u:p@localhost:5432/app"))
	assert.True(t, database.IsPostgres("postgresql://localhost/app"))
	assert.False(t, database.IsPostgres("file:authkit.db?cache=shared"))
	assert.False(t, database.IsPostgres(":memory:"))
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(ctx, "file::memory:?cache=shared")
	require.NoError(t, err)
	defer db.Close()

	results, err := database.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	var count int
	err = db.NewSelect().
		TableExpr("sqlite_master").
		ColumnExpr("COUNT(*)").
		Where("type = 'table' AND name IN ('users', 'sessions')").
		Scan(ctx, &count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err = database.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, results, "second run has nothing to apply")
}

func TestRegistryReusesHandleInDevelopment(t *testing.T) {
	ctx := context.Background()
	reg := database.NewRegistry()
	defer reg.Close()

	cfg := &config.Config{Mode: config.Development, DatabaseURL: ":memory:"}

	first, err := reg.Get(ctx, cfg)
	require.NoError(t, err)
	second, err := reg.Get(ctx, cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestRegistryOpensNewHandleInProduction(t *testing.T) {
	ctx := context.Background()
	reg := database.NewRegistry()
	defer reg.Close()

	cfg := &config.Config{Mode: config.Production, DatabaseURL: ":memory:"}

	first, err := reg.Get(ctx, cfg)
	require.NoError(t, err)
	defer first.Close()

	second, err := reg.Get(ctx, cfg)
	require.NoError(t, err)
	defer second.Close()

	assert.NotSame(t, first, second)
}

func TestSharedReturnsSameHandle(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Mode: config.Development, DatabaseURL: "file:shared_test?mode=memory&cache=shared"}
	defer database.CloseShared()

	first, err := database.Shared(ctx, cfg)
	require.NoError(t, err)
	second, err := database.Shared(ctx, cfg)
	require.NoError(t, err)

	assert.Same(t, first, second)
}
