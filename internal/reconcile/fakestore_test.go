package reconcile

import (
	"context"
	"strings"

	"github.com/indexsync/indexsync/internal/casemode"
	ierrors "github.com/indexsync/indexsync/internal/errors"
	"github.com/indexsync/indexsync/internal/store"
)

// fakeStore is an in-memory store.Store used only by this package's
// tests. It reproduces the same matching-mode semantics as the real
// backends in internal/store (folded comparisons whenever either side
// of the mode is case-insensitive, and a folded uniqueness constraint
// only when the database side is case-insensitive) without touching a
// real database driver.
type fakeStore struct {
	mode casemode.Mode
	rows map[int64]store.Record
	next int64
}

func newFakeStore(mode casemode.Mode) *fakeStore {
	return &fakeStore{mode: mode, rows: make(map[int64]store.Record)}
}

func (s *fakeStore) eq(a, b string) bool {
	if s.mode.MatchesInsensitively() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (s *fakeStore) seedRow(dir, filename, hash string) int64 {
	s.next++
	fid := s.next
	s.rows[fid] = store.Record{FID: fid, Dir: dir, Filename: filename, Hash: hash}
	return fid
}

func (s *fakeStore) FetchDirRecords(ctx context.Context, dirKey string) ([]store.RecordCacheEntry, error) {
	var out []store.RecordCacheEntry
	for _, r := range s.rows {
		if s.eq(r.Dir, dirKey) {
			out = append(out, store.RecordCacheEntry{Record: r, OriginalDir: r.Dir, OriginalFilename: r.Filename})
		}
	}
	return out, nil
}

func (s *fakeStore) FetchSubdirNames(ctx context.Context, dirKey string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.rows {
		rest := r.Dir
		if dirKey != "" {
			cut := len(dirKey)
			if len(rest) <= cut || rest[cut] != '/' || !s.prefixEq(rest[:cut], dirKey) {
				continue
			}
			rest = rest[cut+1:]
		} else if rest == "" {
			continue
		}
		seg := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			seg = rest[:idx]
		}
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		out = append(out, seg)
	}
	return out, nil
}

func (s *fakeStore) prefixEq(a, b string) bool {
	if s.mode.MatchesInsensitively() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (s *fakeStore) FetchOne(ctx context.Context, dir, filename string) ([]store.RecordCacheEntry, error) {
	var out []store.RecordCacheEntry
	for _, r := range s.rows {
		if s.eq(r.Dir, dir) && s.eq(r.Filename, filename) {
			out = append(out, store.RecordCacheEntry{Record: r, OriginalDir: r.Dir, OriginalFilename: r.Filename})
		}
	}
	return out, nil
}

func (s *fakeStore) Insert(ctx context.Context, rec store.Record) (store.Record, error) {
	fold := s.mode.InsensitiveDB()
	for _, r := range s.rows {
		if (r.Dir == rec.Dir && r.Filename == rec.Filename) ||
			(fold && strings.EqualFold(r.Dir, rec.Dir) && strings.EqualFold(r.Filename, rec.Filename)) {
			return store.Record{}, ierrors.New(ierrors.ErrCodeInsertFailure, "unique constraint violation", nil)
		}
	}
	s.next++
	rec.FID = s.next
	s.rows[rec.FID] = rec
	return rec, nil
}

func (s *fakeStore) Update(ctx context.Context, fid int64, rec store.Record) error {
	if _, ok := s.rows[fid]; !ok {
		return ierrors.New(ierrors.ErrCodeUpdateFailure, "no such row", nil)
	}
	rec.FID = fid
	s.rows[fid] = rec
	return nil
}

func (s *fakeStore) DeleteByFID(ctx context.Context, fid int64) error {
	delete(s.rows, fid)
	return nil
}

func (s *fakeStore) DeleteFilesInDir(ctx context.Context, dir string, names []string) (int64, error) {
	var n int64
	for fid, r := range s.rows {
		if !s.eq(r.Dir, dir) {
			continue
		}
		for _, name := range names {
			if s.eq(r.Filename, name) {
				delete(s.rows, fid)
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteSubtree(ctx context.Context, dirPrefix string) (int64, error) {
	var n int64
	for fid, r := range s.rows {
		if s.eq(r.Dir, dirPrefix) || (len(r.Dir) > len(dirPrefix) && r.Dir[len(dirPrefix)] == '/' && s.prefixEq(r.Dir[:len(dirPrefix)], dirPrefix)) {
			delete(s.rows, fid)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Close() error { return nil }

var _ store.Store = (*fakeStore)(nil)
