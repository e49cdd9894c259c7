// Package dbtest opens throwaway Postgres schemas for repository tests.
package dbtest

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-social/pkg/database"
)

// EnvVar names the database the repository tests run against.
const EnvVar = "TEST_DATABASE_URL"

// Open connects to the database named by TEST_DATABASE_URL with a fresh
// schema first on the search_path. The schema is dropped when the test ends.
// The test is skipped when the variable is unset.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv(EnvVar)
	if dsn == "" {
		t.Skip(EnvVar + " not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := database.Open(database.Config{DSN: dsn, MaxConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })

	// extensions live in public so every test schema can see them
	_, err = admin.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS citext SCHEMA public`)
	require.NoError(t, err)

	schema := "test_" + strings.ToLower(ksuid.New().String())
	_, err = admin.ExecContext(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
	})

	db, err := database.Open(database.Config{DSN: withSearchPath(dsn, schema+",public"), MaxConns: 4, TimeZone: "UTC"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// withSearchPath adds search_path as a startup parameter to either DSN form
// lib/pq accepts.
func withSearchPath(dsn, path string) string {
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		q := u.Query()
		q.Set("search_path", path)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return dsn + " search_path=" + path
}
