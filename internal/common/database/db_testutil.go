package database

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TestPostgresEnvVar names the environment variable holding the connection string of a postgres instance tests may
// create databases in, e.g. "host=localhost port=5432 user=postgres password=psw sslmode=disable".
const TestPostgresEnvVar = "BULKIMPORT_TEST_POSTGRES"

// WithTestDb creates a dedicated database for the test, applies migrations and hands a pool connected to it to
// action. The database is dropped afterwards. The test is skipped if no postgres instance is configured.
func WithTestDb(t *testing.T, migrations []Migration, action func(db *pgxpool.Pool) error) error {
	t.Helper()
	connectionString := os.Getenv(TestPostgresEnvVar)
	if connectionString == "" {
		t.Skipf("%s not set; skipping postgres test", TestPostgresEnvVar)
	}
	ctx := context.Background()

	dbName := "test_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	testDbPool, err := pgxpool.New(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		testDbPool.Close()
		// disconnect all db users before cleanup
		_, err := db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			log.WithError(err).Warn("Failed to disconnect users")
		}

		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			log.WithError(err).Warn("Failed to drop database")
		}
	}()

	err = UpdateDatabase(ctx, testDbPool, migrations)
	if err != nil {
		return errors.WithStack(err)
	}

	return action(testDbPool)
}
