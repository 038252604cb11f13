package store

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexsync/indexsync/internal/casemode"
)

func openTestSQLite(t *testing.T, mode casemode.Mode) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := OpenSQLite(context.Background(), db, "file", "sha256", mode)
	require.NoError(t, err)
	return s
}

func TestSQLiteStore_InsertAndFetchOne(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, true))

	rec, err := s.Insert(ctx, Record{Dir: "aa/bb", Filename: "AA", Hash: "deadbeef"})
	require.NoError(t, err)
	assert.NotZero(t, rec.FID)

	got, err := s.FetchOne(ctx, "aa/bb", "AA")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "deadbeef", got[0].Record.Hash)
	assert.Equal(t, rec.FID, got[0].Record.FID)
}

func TestSQLiteStore_FetchOne_CaseInsensitiveDatabase(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, true))

	_, err := s.Insert(ctx, Record{Dir: "aa", Filename: "AA", Hash: "h1"})
	require.NoError(t, err)

	got, err := s.FetchOne(ctx, "aa", "aa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AA", got[0].OriginalFilename)
}

func TestSQLiteStore_FetchOne_InsensitiveFSSensitiveDBNeedsLowering(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(true, false))

	_, err := s.Insert(ctx, Record{Dir: "AA", Filename: "BB", Hash: "h1"})
	require.NoError(t, err)

	got, err := s.FetchOne(ctx, "aa", "bb")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AA", got[0].OriginalDir)
}

func TestSQLiteStore_FetchDirRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	_, err := s.Insert(ctx, Record{Dir: "a/b", Filename: "x", Hash: "h1"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Record{Dir: "a/b", Filename: "y", Hash: "h2"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Record{Dir: "a/c", Filename: "z", Hash: "h3"})
	require.NoError(t, err)

	got, err := s.FetchDirRecords(ctx, "a/b")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteStore_FetchSubdirNames(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	for _, rec := range []Record{
		{Dir: "a/b/c", Filename: "x", Hash: "h1"},
		{Dir: "a/d", Filename: "y", Hash: "h2"},
		{Dir: "e", Filename: "z", Hash: "h3"},
	} {
		_, err := s.Insert(ctx, rec)
		require.NoError(t, err)
	}

	under, err := s.FetchSubdirNames(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "d"}, under)

	root, err := s.FetchSubdirNames(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "e"}, root)
}

func TestSQLiteStore_UpdateReplacesRow(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	rec, err := s.Insert(ctx, Record{Dir: "", Filename: "f", Hash: "old"})
	require.NoError(t, err)

	err = s.Update(ctx, rec.FID, Record{Dir: "", Filename: "f", Hash: "new"})
	require.NoError(t, err)

	got, err := s.FetchOne(ctx, "", "f")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Record.Hash)
}

func TestSQLiteStore_DeleteByFID(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	rec, err := s.Insert(ctx, Record{Dir: "", Filename: "f", Hash: "h"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByFID(ctx, rec.FID))

	got, err := s.FetchOne(ctx, "", "f")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_DeleteFilesInDir(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Insert(ctx, Record{Dir: "d", Filename: name, Hash: "h"})
		require.NoError(t, err)
	}

	n, err := s.DeleteFilesInDir(ctx, "d", []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := s.FetchDirRecords(ctx, "d")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b", remaining[0].Record.Filename)
}

func TestSQLiteStore_DeleteSubtree(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	for _, rec := range []Record{
		{Dir: "a", Filename: "f1", Hash: "h"},
		{Dir: "a/b", Filename: "f2", Hash: "h"},
		{Dir: "a/b/c", Filename: "f3", Hash: "h"},
		{Dir: "aa", Filename: "f4", Hash: "h"},
	} {
		_, err := s.Insert(ctx, rec)
		require.NoError(t, err)
	}

	n, err := s.DeleteSubtree(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	remaining, err := s.FetchDirRecords(ctx, "aa")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSQLiteStore_DeleteSubtree_EscapesLikeMetacharacters(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	_, err := s.Insert(ctx, Record{Dir: "a_b", Filename: "f1", Hash: "h"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, Record{Dir: "axb/c", Filename: "f2", Hash: "h"})
	require.NoError(t, err)

	n, err := s.DeleteSubtree(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteStore_UniqueConstraintRejectsDuplicateInsert(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, false))

	_, err := s.Insert(ctx, Record{Dir: "d", Filename: "f", Hash: "h1"})
	require.NoError(t, err)

	_, err = s.Insert(ctx, Record{Dir: "d", Filename: "f", Hash: "h2"})
	assert.Error(t, err)
}

func TestSQLiteStore_UniqueConstraintUnderCaseInsensitiveDatabase(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, casemode.New(false, true))

	_, err := s.Insert(ctx, Record{Dir: "d", Filename: "f", Hash: "h1"})
	require.NoError(t, err)

	_, err = s.Insert(ctx, Record{Dir: "D", Filename: "F", Hash: "h2"})
	assert.Error(t, err)
}
