package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexsync/indexsync/internal/casemode"
)

// mysqlTestDSN reports the DSN and registered driver name for the
// MySQL-backed store tests, both supplied by the caller's environment.
// No MySQL driver is imported by this module (see DESIGN.md); the
// operator running these tests against a real server registers one
// (go-sql-driver/mysql or similar) in their own test binary via a
// build-tag'd blank import, then points INDEXSYNC_TEST_MYSQL_DRIVER at
// its registered name.
func mysqlTestDSN(t *testing.T) (driver, dsn string) {
	t.Helper()
	dsn = os.Getenv("INDEXSYNC_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("INDEXSYNC_TEST_MYSQL_DSN not set; skipping MySQL-backed store tests")
	}
	driver = os.Getenv("INDEXSYNC_TEST_MYSQL_DRIVER")
	if driver == "" {
		driver = "mysql"
	}
	return driver, dsn
}

func openTestMySQL(t *testing.T, table string, mode casemode.Mode) *MySQLStore {
	t.Helper()
	driver, dsn := mysqlTestDSN(t)
	s, err := OpenMySQL(context.Background(), driver, dsn, table, "sha256", mode)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+table)
		_ = s.Close()
	})
	return s
}

func TestMySQLStore_InsertAndFetchOne(t *testing.T) {
	ctx := context.Background()
	s := openTestMySQL(t, "indexsync_test_insert", casemode.New(false, true))

	rec, err := s.Insert(ctx, Record{Dir: "a/b", Filename: "F", Hash: "deadbeef"})
	require.NoError(t, err)
	assert.NotZero(t, rec.FID)

	got, err := s.FetchOne(ctx, "a/b", "f")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMySQLStore_CollationOverrideOnSensitiveTable(t *testing.T) {
	ctx := context.Background()
	s := openTestMySQL(t, "indexsync_test_collate", casemode.New(true, false))

	_, err := s.Insert(ctx, Record{Dir: "A", Filename: "B", Hash: "h"})
	require.NoError(t, err)

	got, err := s.FetchOne(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestMySQLStore_DeleteSubtree(t *testing.T) {
	ctx := context.Background()
	s := openTestMySQL(t, "indexsync_test_subtree", casemode.New(false, false))

	_, err := s.Insert(ctx, Record{Dir: "a", Filename: "f1", Hash: "h"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Record{Dir: "a/b", Filename: "f2", Hash: "h"})
	require.NoError(t, err)

	n, err := s.DeleteSubtree(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
