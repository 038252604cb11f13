package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/indexsync/indexsync/internal/casemode"
)

// PostgresStore is the PostgreSQL-like back end: ILIKE when the
// filesystem is insensitive but the database is not, plain LIKE
// otherwise. Database-side insensitivity
// is modeled with the citext extension rather than LOWER()-wrapping
// every comparison, the idiomatic Postgres answer to a
// case-insensitive column. Grounded on FruitSalade's
// internal/metadata/postgres/postgres.go: connection pooling via
// SetMaxOpenConns/SetMaxIdleConns/SetConnMaxLifetime, context-threaded
// Query/Exec, $-numbered placeholders, fmt.Errorf-wrapped errors, and
// a LIKE-based subtree delete reporting RowsAffected.
type PostgresStore struct {
	db      *sql.DB
	table   string
	hashCol string
	mode    casemode.Mode
}

// OpenPostgres opens a connection pool against databaseURL (a
// postgres:// DSN consumed by lib/pq) and creates table if missing.
func OpenPostgres(ctx context.Context, databaseURL, table, hashCol string, mode casemode.Mode) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, table: table, hashCol: hashCol, mode: mode}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	dirType, filenameType := "TEXT", "TEXT"
	if s.mode.InsensitiveDB() {
		if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS citext"); err != nil {
			return fmt.Errorf("enable citext extension: %w", err)
		}
		dirType, filenameType = "CITEXT", "CITEXT"
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		fid BIGSERIAL PRIMARY KEY,
		dir %s NOT NULL,
		filename %s NOT NULL,
		%s TEXT NOT NULL,
		UNIQUE (dir, filename)
	)`, s.table, dirType, filenameType, s.hashCol)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)`, s.table, s.hashCol, s.table, s.hashCol)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create hash index on %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) dirEqClause(n int) string {
	if s.mode.NeedsSQLLowering() {
		return fmt.Sprintf("LOWER(dir) = LOWER($%d)", n)
	}
	return fmt.Sprintf("dir = $%d", n)
}

func (s *PostgresStore) filenameEqClause(n int) string {
	if s.mode.NeedsSQLLowering() {
		return fmt.Sprintf("LOWER(filename) = LOWER($%d)", n)
	}
	return fmt.Sprintf("filename = $%d", n)
}

// likeOp picks ILIKE only when the filesystem is insensitive and the
// database is not.
func (s *PostgresStore) likeOp() string {
	if s.mode.NeedsSQLLowering() {
		return "ILIKE"
	}
	return "LIKE"
}

func (s *PostgresStore) FetchDirRecords(ctx context.Context, dirKey string) ([]RecordCacheEntry, error) {
	q := fmt.Sprintf("SELECT fid, dir, filename, %s FROM %s WHERE %s", s.hashCol, s.table, s.dirEqClause(1))
	rows, err := s.db.QueryContext(ctx, q, dirKey)
	if err != nil {
		return nil, fmt.Errorf("fetch records for dir %q: %w", dirKey, err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func (s *PostgresStore) FetchSubdirNames(ctx context.Context, dirKey string) ([]string, error) {
	var q string
	var args []any
	if dirKey == "" {
		q = fmt.Sprintf("SELECT DISTINCT dir FROM %s WHERE dir <> ''", s.table)
	} else {
		q = fmt.Sprintf("SELECT DISTINCT dir FROM %s WHERE dir %s $1 ESCAPE '\\'", s.table, s.likeOp())
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

func (s *PostgresStore) FetchOne(ctx context.Context, dir, filename string) ([]RecordCacheEntry, error) {
	q := fmt.Sprintf("SELECT fid, dir, filename, %s FROM %s WHERE %s AND %s",
		s.hashCol, s.table, s.dirEqClause(1), s.filenameEqClause(2))
	rows, err := s.db.QueryContext(ctx, q, dir, filename)
	if err != nil {
		return nil, fmt.Errorf("fetch record for %s: %w", joinRel(dir, filename), err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	q := fmt.Sprintf("INSERT INTO %s (dir, filename, %s) VALUES ($1, $2, $3) RETURNING fid", s.table, s.hashCol)
	if err := s.db.QueryRowContext(ctx, q, rec.Dir, rec.Filename, rec.Hash).Scan(&rec.FID); err != nil {
		return Record{}, fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, fid int64, rec Record) error {
	q := fmt.Sprintf("UPDATE %s SET dir = $1, filename = $2, %s = $3 WHERE fid = $4", s.table, s.hashCol)
	if _, err := s.db.ExecContext(ctx, q, rec.Dir, rec.Filename, rec.Hash, fid); err != nil {
		return fmt.Errorf("update %s fid %d: %w", s.table, fid, err)
	}
	return nil
}

func (s *PostgresStore) DeleteByFID(ctx context.Context, fid int64) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE fid = $1", s.table)
	if _, err := s.db.ExecContext(ctx, q, fid); err != nil {
		return fmt.Errorf("delete %s fid %d: %w", s.table, fid, err)
	}
	return nil
}

func (s *PostgresStore) DeleteFilesInDir(ctx context.Context, dir string, names []string) (int64, error) {
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
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, n)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s AND %s IN (%s)",
		s.table, s.dirEqClause(1), filenameExpr, strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete files in dir %q: %w", dir, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteSubtree(ctx context.Context, dirPrefix string) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s OR dir %s $2 ESCAPE '\\'", s.table, s.dirEqClause(1), s.likeOp())
	res, err := s.db.ExecContext(ctx, q, dirPrefix, subtreeLikePattern(dirPrefix))
	if err != nil {
		return 0, fmt.Errorf("delete subtree %q: %w", dirPrefix, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
