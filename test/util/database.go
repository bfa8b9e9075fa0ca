// Package util provides test helpers for the PostgreSQL incident store.
package util

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/sherlog/pkg/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:17-alpine"

// sharedPostgres starts one container per test binary. CI_DATABASE_URL
// replaces the container when set.
var sharedPostgres = sync.OnceValues(func() (string, error) {
	if dsn := os.Getenv("CI_DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("sherlog_test"),
		postgres.WithUsername("sherlog"),
		postgres.WithPassword("sherlog"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start postgres container: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", fmt.Errorf("failed to read container connection string: %w", err)
	}
	return dsn, nil
})

// SetupTestDatabase returns a migrated client whose connections all use a
// schema private to t. The schema is dropped on cleanup.
func SetupTestDatabase(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	dsn, err := sharedPostgres()
	require.NoError(t, err, "PostgreSQL for tests is unavailable")

	schema := schemaName(t)
	admin, err := stdsql.Open("pgx", dsn)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	scopedDSN, err := withSearchPath(dsn, schema)
	require.NoError(t, err)
	db, err := stdsql.Open("pgx", scopedDSN)
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	t.Cleanup(func() {
		_ = db.Close()
		if _, err := admin.ExecContext(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("failed to drop schema %s: %v", schema, err)
		}
		_ = admin.Close()
	})

	require.NoError(t, database.RunMigrations(db, "test"))
	return database.NewClientFromDB(db)
}

// schemaName derives test_<name>_<hex> from the test name, kept well under
// PostgreSQL's 63 byte identifier limit.
func schemaName(t *testing.T) string {
	var b strings.Builder
	for _, r := range strings.ToLower(t.Name()) {
		if b.Len() == 40 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return "test_" + b.String() + "_" + hex.EncodeToString(suffix)
}

// withSearchPath sets search_path on a URL-form DSN.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
