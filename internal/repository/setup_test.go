package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/infrastructure/migrate"
)

const testMigrationsPath = "../../migrations"

// setupTestDB starts a throwaway postgres, applies the real migrations
// through the migrate runner and returns a connected handle.
func setupTestDB(t *testing.T) (*sqlx.DB, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("dispatcher_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runner := migrate.NewRunner(&migrate.Config{
		DatabaseURL:    dsn,
		MigrationsPath: testMigrationsPath,
	}, zap.NewNop())
	require.NoError(t, runner.Run())

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)

	return db, func() {
		_ = db.Close()
		_ = pgContainer.Terminate(ctx)
	}
}

func cleanupTestData(db *sqlx.DB) {
	_, _ = db.Exec("TRUNCATE TABLE message_logs, transactions, scheduled_messages, accounts CASCADE")
}
