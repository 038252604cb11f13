package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/indexsync/indexsync/internal/casemode"
)

// scanRecordRows drains rows of (fid, dir, filename, hash) into
// RecordCacheEntry values. All three back ends share this: the row
// shape never depends on which database family produced it.
func scanRecordRows(rows *sql.Rows) ([]RecordCacheEntry, error) {
	var out []RecordCacheEntry
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.FID, &r.Dir, &r.Filename, &r.Hash); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, RecordCacheEntry{Record: r, OriginalDir: r.Dir, OriginalFilename: r.Filename})
	}
	return out, rows.Err()
}

// joinRel renders a (dir, filename) pair the way error messages in this
// package describe a single record: "dir/filename", or just "filename"
// at the root.
func joinRel(dir, filename string) string {
	if dir == "" {
		return filename
	}
	return dir + "/" + filename
}

// firstSegmentAfter extracts the immediate subdirectory name from a
// dir value already known (by the caller's WHERE clause) to sit
// at or below prefix: the path component immediately following prefix.
// Matching prefix case-insensitively when mode calls for it means a
// literal TrimPrefix is not safe — "D/BB" must still yield "BB" when
// trimming prefix "d".
func firstSegmentAfter(dir, prefix string, mode casemode.Mode) string {
	rest := dir
	if prefix != "" {
		cut := len(prefix)
		matches := len(dir) > cut && dir[cut] == '/'
		if matches {
			if mode.MatchesInsensitively() {
				matches = strings.EqualFold(dir[:cut], prefix)
			} else {
				matches = dir[:cut] == prefix
			}
		}
		if matches {
			rest = dir[cut+1:]
		} else {
			return ""
		}
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}
