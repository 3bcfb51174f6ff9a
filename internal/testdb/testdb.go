// Package testdb provides migrated databases for package tests: a private in-memory SQLite per
// test by default, and a shared Postgres container when OPENATTENDANCE_PG_TESTS=1.
//
// Only external test packages (package x_test) may import it; it depends on every model.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	"github.com/Mizumo-prjkt/openattendance/internal/db"
	"github.com/Mizumo-prjkt/openattendance/internal/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
)

const PostgresEnv = "OPENATTENDANCE_PG_TESTS"

// Tables in dependency-free truncation order.
var Tables = []string{
	"presence_records",
	"absence_records",
	"excuse_requests",
	"system_logs",
	"configurations",
	"staff_logins",
	"staff_accounts",
	"admin_accounts",
	"students",
}

// New returns a migrated database: Postgres when PostgresEnv is set, SQLite otherwise.
func New(t *testing.T) *bun.DB {
	t.Helper()

	if os.Getenv(PostgresEnv) == "1" {
		pg := SetupSharedPostgres(t)
		CleanupTables(t, pg.DB, Tables...)
		return pg.DB
	}
	return NewSQLite(t)
}

// NewSQLite opens a private in-memory database, migrated, and closes it when t ends.
func NewSQLite(t *testing.T) *bun.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	bunDB, err := db.NewSQLite(dsn)
	require.NoError(t, err)

	t.Cleanup(func() { bunDB.Close() })

	require.NoError(t, schema.Migrate(context.Background(), bunDB))
	return bunDB
}

var (
	sharedContainer *PostgresContainer
	sharedOnce      sync.Once
)

type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DB        *bun.DB
	DSN       string
}

// SetupSharedPostgres starts one Postgres container per test binary and migrates it.
//
// Tests using the shared container cannot run in parallel.
func SetupSharedPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	sharedOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("openattendance"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
			),
		)
		require.NoError(t, err)

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)

		bunDB := db.NewWithDSN(connStr)
		require.NoError(t, bunDB.Ping())
		require.NoError(t, schema.Migrate(ctx, bunDB))

		sharedContainer = &PostgresContainer{
			Container: pgContainer,
			DB:        bunDB,
			DSN:       connStr,
		}
	})

	require.NotNil(t, sharedContainer, "shared postgres container failed to start")
	return sharedContainer
}

func (pc *PostgresContainer) Cleanup(t *testing.T) {
	t.Helper()

	if pc.DB != nil {
		pc.DB.Close()
	}
	if pc.Container != nil {
		if err := pc.Container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
}

func CleanupTables(t *testing.T, bunDB *bun.DB, tables ...string) {
	t.Helper()

	ctx := context.Background()
	for _, table := range tables {
		_, err := bunDB.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY CASCADE")
		require.NoError(t, err, "failed to truncate table: %s", table)
	}
}

// Exec runs a raw statement, for fixtures the services do not expose.
func Exec(t *testing.T, bunDB *bun.DB, query string, args ...interface{}) sql.Result {
	t.Helper()

	res, err := bunDB.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
	return res
}
