package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/indexsync/indexsync/internal/casemode"
)

// SQLiteStore is the SQLite-like back end: plain LIKE everywhere,
// case sensitivity toggled once per connection via PRAGMA
// case_sensitive_like. Uses a plain *sql.DB, fmt.Errorf-wrapped
// errors, and no transaction wrapping for single statements.
type SQLiteStore struct {
	db      *sql.DB
	table   string
	hashCol string
	mode    casemode.Mode
}

// OpenSQLite binds db — expected to have been opened against
// modernc.org/sqlite — to table, creating it if missing. Dir/filename
// columns get COLLATE NOCASE when the database side of mode is
// configured case-insensitive; the connection-wide case_sensitive_like
// pragma is set to match mode.
func OpenSQLite(ctx context.Context, db *sql.DB, table, hashCol string, mode casemode.Mode) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, table: table, hashCol: hashCol, mode: mode}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	collate := ""
	if s.mode.InsensitiveDB() {
		collate = " COLLATE NOCASE"
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		dir TEXT NOT NULL%s,
		filename TEXT NOT NULL%s,
		%s TEXT NOT NULL,
		UNIQUE(dir, filename) ON CONFLICT ABORT
	)`, s.table, collate, collate, s.hashCol)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)`, s.table, s.hashCol, s.table, s.hashCol)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("failed to create hash index on %s: %w", s.table, err)
	}
	pragma := "OFF"
	if s.mode.SQLiteCaseSensitiveLike() {
		pragma = "ON"
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA case_sensitive_like = "+pragma); err != nil {
		return fmt.Errorf("failed to set case_sensitive_like: %w", err)
	}
	return nil
}

func (s *SQLiteStore) dirEqClause() string {
	if s.mode.NeedsSQLLowering() {
		return "LOWER(dir) = LOWER(?)"
	}
	return "dir = ?"
}

func (s *SQLiteStore) filenameEqClause() string {
	if s.mode.NeedsSQLLowering() {
		return "LOWER(filename) = LOWER(?)"
	}
	return "filename = ?"
}

func (s *SQLiteStore) FetchDirRecords(ctx context.Context, dirKey string) ([]RecordCacheEntry, error) {
	q := fmt.Sprintf("SELECT fid, dir, filename, %s FROM %s WHERE %s", s.hashCol, s.table, s.dirEqClause())
	rows, err := s.db.QueryContext(ctx, q, dirKey)
	if err != nil {
		return nil, fmt.Errorf("fetch records for dir %q: %w", dirKey, err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func (s *SQLiteStore) FetchSubdirNames(ctx context.Context, dirKey string) ([]string, error) {
	var q string
	var args []any
	if dirKey == "" {
		q = fmt.Sprintf("SELECT DISTINCT dir FROM %s WHERE dir <> ''", s.table)
	} else {
		q = fmt.Sprintf(`SELECT DISTINCT dir FROM %s WHERE dir LIKE ? ESCAPE '\'`, s.table)
		args = []any{subtreeLikePattern(dirKey)}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch subdir names under %q: %w", dirKey, err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var names []string
	for rows.Next() {
		var dir string
		if err := rows.Scan(&dir); err != nil {
			return nil, fmt.Errorf("scan subdir row: %w", err)
		}
		seg := firstSegmentAfter(dir, dirKey, s.mode)
		if seg == "" {
			continue
		}
		if _, ok := seen[seg]; ok {
			continue
		}
		seen[seg] = struct{}{}
		names = append(names, seg)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) FetchOne(ctx context.Context, dir, filename string) ([]RecordCacheEntry, error) {
	q := fmt.Sprintf("SELECT fid, dir, filename, %s FROM %s WHERE %s AND %s",
		s.hashCol, s.table, s.dirEqClause(), s.filenameEqClause())
	rows, err := s.db.QueryContext(ctx, q, dir, filename)
	if err != nil {
		return nil, fmt.Errorf("fetch record for %s: %w", joinRel(dir, filename), err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (Record, error) {
	q := fmt.Sprintf("INSERT INTO %s (dir, filename, %s) VALUES (?, ?, ?)", s.table, s.hashCol)
	res, err := s.db.ExecContext(ctx, q, rec.Dir, rec.Filename, rec.Hash)
	if err != nil {
		return Record{}, fmt.Errorf("insert into %s: %w", s.table, err)
	}
	fid, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("read last insert id from %s: %w", s.table, err)
	}
	rec.FID = fid
	return rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, fid int64, rec Record) error {
	q := fmt.Sprintf("UPDATE %s SET dir = ?, filename = ?, %s = ? WHERE fid = ?", s.table, s.hashCol)
	if _, err := s.db.ExecContext(ctx, q, rec.Dir, rec.Filename, rec.Hash, fid); err != nil {
		return fmt.Errorf("update %s fid %d: %w", s.table, fid, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByFID(ctx context.Context, fid int64) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE fid = ?", s.table)
	if _, err := s.db.ExecContext(ctx, q, fid); err != nil {
		return fmt.Errorf("delete %s fid %d: %w", s.table, fid, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteFilesInDir(ctx context.Context, dir string, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	filenameExpr := "filename"
	if s.mode.NeedsSQLLowering() {
		filenameExpr = "LOWER(filename)"
	}
	placeholders := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	args = append(args, dir)
	for i, n := range names {
		if s.mode.NeedsSQLLowering() {
			n = strings.ToLower(n)
		}
		placeholders[i] = "?"
		args = append(args, n)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s AND %s IN (%s)",
		s.table, s.dirEqClause(), filenameExpr, strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete files in dir %q: %w", dir, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteSubtree(ctx context.Context, dirPrefix string) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s OR dir LIKE ? ESCAPE '\'`, s.table, s.dirEqClause())
	res, err := s.db.ExecContext(ctx, q, dirPrefix, subtreeLikePattern(dirPrefix))
	if err != nil {
		return 0, fmt.Errorf("delete subtree %q: %w", dirPrefix, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return nil
}

var _ Store = (*SQLiteStore)(nil)
