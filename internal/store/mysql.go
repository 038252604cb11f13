package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/indexsync/indexsync/internal/casemode"
)

// ciCollation is the MySQL collation applied to dir/filename when the
// database side of mode is configured case-insensitive.
const ciCollation = "utf8mb4_general_ci"

// csCollation is applied when the database side is sensitive, and is
// also the collation a case-insensitive filesystem comparison must
// override to with an explicit COLLATE clause (NeedsSQLLowering).
const csCollation = "utf8mb4_bin"

// MySQLStore is the MySQL-like back end: "col COLLATE <ci> LIKE …"
// when the filesystem is insensitive but the database is not, plain
// LIKE otherwise. Built directly against database/sql with no
// vendored driver: OpenMySQL takes the driver name so the caller
// registers whichever real driver (go-sql-driver/mysql and friends)
// they have available, the same way the other two back ends are
// handed an already-open *sql.DB/DSN.
type MySQLStore struct {
	db      *sql.DB
	table   string
	hashCol string
	mode    casemode.Mode
}

// OpenMySQL opens dsn through the registered driverName and creates
// table if missing.
func OpenMySQL(ctx context.Context, driverName, dsn, table, hashCol string, mode casemode.Mode) (*MySQLStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db, table: table, hashCol: hashCol, mode: mode}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) collation() string {
	if s.mode.InsensitiveDB() {
		return ciCollation
	}
	return csCollation
}

func (s *MySQLStore) init(ctx context.Context) error {
	collate := s.collation()
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		fid BIGINT AUTO_INCREMENT PRIMARY KEY,
		dir VARCHAR(1024) COLLATE %s NOT NULL,
		filename VARCHAR(255) COLLATE %s NOT NULL,
		%s VARCHAR(255) NOT NULL,
		UNIQUE KEY uniq_dir_filename (dir, filename),
		KEY idx_hash (%s)
	) ENGINE=InnoDB`, s.table, collate, collate, s.hashCol, s.hashCol)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// ciOverride is the explicit COLLATE clause applied to force
// case-insensitive matching on a table whose own collation is
// sensitive: "col COLLATE <ci> LIKE …".
func (s *MySQLStore) ciOverride() string {
	if s.mode.NeedsSQLLowering() {
		return " COLLATE " + ciCollation
	}
	return ""
}

func (s *MySQLStore) dirEqClause() string {
	return "dir" + s.ciOverride() + " = ?"
}

func (s *MySQLStore) filenameEqClause() string {
	return "filename" + s.ciOverride() + " = ?"
}

func (s *MySQLStore) FetchDirRecords(ctx context.Context, dirKey string) ([]RecordCacheEntry, error) {
	q := fmt.Sprintf("SELECT fid, dir, filename, %s FROM %s WHERE %s", s.hashCol, s.table, s.dirEqClause())
	rows, err := s.db.QueryContext(ctx, q, dirKey)
	if err != nil {
		return nil, fmt.Errorf("fetch records for dir %q: %w", dirKey, err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func (s *MySQLStore) FetchSubdirNames(ctx context.Context, dirKey string) ([]string, error) {
	var q string
	var args []any
	if dirKey == "" {
		q = fmt.Sprintf("SELECT DISTINCT dir FROM %s WHERE dir <> ''", s.table)
	} else {
		q = fmt.Sprintf("SELECT DISTINCT dir FROM %s WHERE dir%s LIKE ? ESCAPE '\\\\'", s.table, s.ciOverride())
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

func (s *MySQLStore) FetchOne(ctx context.Context, dir, filename string) ([]RecordCacheEntry, error) {
	q := fmt.Sprintf("SELECT fid, dir, filename, %s FROM %s WHERE %s AND %s",
		s.hashCol, s.table, s.dirEqClause(), s.filenameEqClause())
	rows, err := s.db.QueryContext(ctx, q, dir, filename)
	if err != nil {
		return nil, fmt.Errorf("fetch record for %s: %w", joinRel(dir, filename), err)
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func (s *MySQLStore) Insert(ctx context.Context, rec Record) (Record, error) {
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

func (s *MySQLStore) Update(ctx context.Context, fid int64, rec Record) error {
	q := fmt.Sprintf("UPDATE %s SET dir = ?, filename = ?, %s = ? WHERE fid = ?", s.table, s.hashCol)
	if _, err := s.db.ExecContext(ctx, q, rec.Dir, rec.Filename, rec.Hash, fid); err != nil {
		return fmt.Errorf("update %s fid %d: %w", s.table, fid, err)
	}
	return nil
}

func (s *MySQLStore) DeleteByFID(ctx context.Context, fid int64) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE fid = ?", s.table)
	if _, err := s.db.ExecContext(ctx, q, fid); err != nil {
		return fmt.Errorf("delete %s fid %d: %w", s.table, fid, err)
	}
	return nil
}

func (s *MySQLStore) DeleteFilesInDir(ctx context.Context, dir string, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	args = append(args, dir)
	for i, n := range names {
		placeholders[i] = "?"
		args = append(args, n)
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s AND filename%s IN (%s)",
		s.table, s.dirEqClause(), s.ciOverride(), strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete files in dir %q: %w", dir, err)
	}
	return res.RowsAffected()
}

func (s *MySQLStore) DeleteSubtree(ctx context.Context, dirPrefix string) (int64, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s OR dir%s LIKE ? ESCAPE '\\\\'", s.table, s.dirEqClause(), s.ciOverride())
	res, err := s.db.ExecContext(ctx, q, dirPrefix, subtreeLikePattern(dirPrefix))
	if err != nil {
		return 0, fmt.Errorf("delete subtree %q: %w", dirPrefix, err)
	}
	return res.RowsAffected()
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
