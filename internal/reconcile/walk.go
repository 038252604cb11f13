package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	ierrors "github.com/indexsync/indexsync/internal/errors"
	"github.com/indexsync/indexsync/internal/logging"
	"github.com/indexsync/indexsync/internal/store"
)

// processFileOrDir is process_file_or_dir(P): the dispatch point every
// walked path (top-level input or recursed child) passes through.
// relPath is "/"-joined and relative to the allowed root; "" is the
// root directory itself.
func (e *Engine) processFileOrDir(ctx context.Context, c *caches, absPath, relPath string, stats *Stats) error {
	fi, err := os.Lstat(absPath)
	if err != nil {
		e.logError(ierrors.New(ierrors.ErrCodeInvalidPath, fmt.Sprintf("failed to stat '%s'", absPath), err))
		stats.Errors++
		return nil
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		if !e.cfg.ProcessSymlinks {
			logging.Renderf(e.logger, slog.LevelError,
				"'{path}' is a symlink; this is not supported.",
				map[string]any{"path": absPath})
			stats.SymlinksSkipped++
			return nil
		}
		target, err := os.Stat(absPath)
		if err != nil {
			e.logError(ierrors.New(ierrors.ErrCodeInvalidPath, fmt.Sprintf("failed to follow symlink '%s'", absPath), err))
			stats.Errors++
			return nil
		}
		if target.IsDir() {
			return e.processDirectory(ctx, c, absPath, relPath, stats)
		}
		return e.processFile(ctx, c, absPath, relPath, stats)
	}

	if fi.IsDir() {
		return e.processDirectory(ctx, c, absPath, relPath, stats)
	}
	return e.processFile(ctx, c, absPath, relPath, stats)
}

// processDirectory is process_directory(D): it runs check C4 against
// the parent's already-cached records (if the parent is currently being
// walked), reads D via readDirectory (which itself runs C1 and C2),
// recurses into every child, then discards D's cache entries.
func (e *Engine) processDirectory(ctx context.Context, c *caches, absPath, relPath string, stats *Stats) error {
	parentRel, basename := splitRel(relPath)
	dKey := e.mode.Key(relPath)

	if basename != "" {
		parentKey := e.mode.Key(parentRel)
		if parentRecords, ok := c.records[parentKey]; ok {
			e.checkC4(ctx, parentRel, parentRecords, basename, stats)
		}
	}

	defer func() {
		delete(c.records, dKey)
		delete(c.subdirs, dKey)
	}()

	names, err := e.readDirectory(ctx, c, absPath, relPath, dKey, stats)
	if err != nil {
		e.logError(ierrors.New(ierrors.ErrCodeQueryFailure, fmt.Sprintf("failed to read directory '%s'", relPath), err))
		stats.Errors++
		return nil
	}

	for _, name := range names {
		childRel := joinRel(relPath, name)
		if err := e.processFileOrDir(ctx, c, filepath.Join(absPath, name), childRel, stats); err != nil {
			return err
		}
	}

	if _, ok := c.records[dKey]; !ok {
		logging.Renderf(e.logger, slog.LevelWarn,
			"records cache unexpectedly missing for directory '{dir}' at exit",
			map[string]any{"dir": relPath})
	}
	if _, ok := c.subdirs[dKey]; !ok {
		logging.Renderf(e.logger, slog.LevelWarn,
			"subdirs cache unexpectedly missing for directory '{dir}' at exit",
			map[string]any{"dir": relPath})
	}
	return nil
}

// readDirectory is read_directory(D): it lists D's entries (optionally
// sorted, and deduplicated against each other first when the filesystem
// side of the mode is sensitive but the database side is not), fetches
// and caches D's records and subdirectory names, and runs checks C1 and
// C2 against what it just cached. It returns the deduplicated entry
// names for the caller to recurse into.
func (e *Engine) readDirectory(ctx context.Context, c *caches, absPath, dRel, dKey string, stats *Stats) ([]string, error) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}
	if e.cfg.SortDirectoryEntries {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	}

	onDiskSensitiveFSInsensitiveDB := !e.mode.InsensitiveFS() && e.mode.InsensitiveDB()
	seenFold := make(map[string]string)

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if onDiskSensitiveFSInsensitiveDB {
			fold := e.mode.Key(name)
			if first, ok := seenFold[fold]; ok {
				logging.Renderf(e.logger, slog.LevelWarn,
					"Directory '{dir}' contains entries for both {first} and {second}; these cannot both be indexed in a case insensitive database. Skipping the latter file.",
					map[string]any{"dir": dRel, "first": first, "second": name})
				continue
			}
			seenFold[fold] = name
		}
		names = append(names, name)
	}

	rows, err := e.store.FetchDirRecords(ctx, dRel)
	if err != nil {
		return nil, err
	}
	if e.mode.NeedsDedup() {
		rows, err = e.dedup(ctx, rows, dRel, names)
		if err != nil {
			return nil, err
		}
	}
	recordsCache := make(map[string]store.RecordCacheEntry, len(rows))
	for _, r := range rows {
		recordsCache[e.mode.Key(r.OriginalFilename)] = r
	}
	c.records[dKey] = recordsCache

	subdirRaw, err := e.store.FetchSubdirNames(ctx, dRel)
	if err != nil {
		return nil, err
	}
	subdirCache := make(map[string]struct{}, len(subdirRaw))
	for _, n := range subdirRaw {
		subdirCache[n] = struct{}{}
	}
	c.subdirs[dKey] = subdirCache

	e.checkC1(ctx, dRel, recordsCache, names, stats)
	e.checkC2(ctx, dRel, subdirCache, names, stats)

	return names, nil
}

// processFile is process_file(F): it runs check C3 against the
// parent's cached subdirectory names, then applies the per-file
// insert/update/skip decision using either the parent's already-cached
// records (the normal case, when F was reached by recursing through a
// walked directory) or a one-off fetch for a top-level file input
// whose parent was never walked.
func (e *Engine) processFile(ctx context.Context, c *caches, absPath, relPath string, stats *Stats) error {
	dir, filename := splitRel(relPath)
	dirKey := e.mode.Key(dir)
	fileKey := e.mode.Key(filename)

	if parentSubdirs, ok := c.subdirs[dirKey]; ok {
		e.checkC3(ctx, parentSubdirs, relPath, filename, stats)
	}

	dirCache, ok := c.records[dirKey]
	provisional := false
	if !ok {
		rows, err := e.store.FetchOne(ctx, dir, filename)
		if err != nil {
			e.logError(ierrors.New(ierrors.ErrCodeQueryFailure, fmt.Sprintf("failed to query indexed record for '%s'", relPath), err))
			stats.Errors++
			return nil
		}
		if e.mode.NeedsDedup() && len(rows) > 1 {
			rows, err = e.dedup(ctx, rows, dir, []string{filename})
			if err != nil {
				e.logger.Error(err.Error())
				stats.Errors++
				return nil
			}
		}
		dirCache = make(map[string]store.RecordCacheEntry, len(rows))
		for _, r := range rows {
			dirCache[e.mode.Key(r.OriginalFilename)] = r
		}
		c.records[dirKey] = dirCache
		provisional = true
	}

	cached, hasCached := dirCache[fileKey]

	if !hasCached || e.cfg.ReindexAll {
		hash, err := hashFile(absPath, e.cfg.HashAlgo)
		if err != nil {
			e.logError(ierrors.HashFailure(absPath, err))
			stats.Errors++
		} else {
			newRec := store.Record{Dir: dir, Filename: filename, Hash: hash}
			switch {
			case !hasCached:
				rec, err := e.store.Insert(ctx, newRec)
				if err != nil {
					e.logError(ierrors.InsertFailure(dir, filename, err))
					stats.Errors++
				} else {
					stats.New++
					dirCache[fileKey] = store.RecordCacheEntry{Record: rec, OriginalDir: dir, OriginalFilename: filename}
				}
			case !equalRecords(newRec, cached.Record, e.cfg.ReindexAll):
				newRec.FID = cached.Record.FID
				if err := e.store.Update(ctx, cached.Record.FID, newRec); err != nil {
					if provisional {
						delete(c.records, dirKey)
					}
					return ierrors.UpdateFailure(dir, filename, err)
				}
				stats.Updated++
				dirCache[fileKey] = store.RecordCacheEntry{Record: newRec, OriginalDir: dir, OriginalFilename: filename}
			default:
				stats.Equal++
			}
		}
	} else {
		stats.Skipped++
	}

	if provisional {
		delete(c.records, dirKey)
	}
	e.emitSnapshot(*stats)
	return nil
}

// equalRecords implements the Equality Rule: hashes must always match;
// dir/filename casing only matters when reindex_all is in effect, since
// that is the only mode where a bare re-casing (same content, different
// case) should still be written back.
func equalRecords(newRec, cached store.Record, reindexAll bool) bool {
	if newRec.Hash != cached.Hash {
		return false
	}
	if reindexAll && (newRec.Dir != cached.Dir || newRec.Filename != cached.Filename) {
		return false
	}
	return true
}
