package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	ierrors "github.com/indexsync/indexsync/internal/errors"
	"github.com/indexsync/indexsync/internal/logging"
	"github.com/indexsync/indexsync/internal/store"
)

// checkC1 finds indexed records for files that no longer exist in the
// directory just read, via a map-membership diff generalized from a
// single ID set to dir-scoped filename keys.
func (e *Engine) checkC1(ctx context.Context, dRel string, recordsCache map[string]store.RecordCacheEntry, onDiskNames []string, stats *Stats) {
	onDiskKeys := make(map[string]struct{}, len(onDiskNames))
	for _, n := range onDiskNames {
		onDiskKeys[e.mode.Key(n)] = struct{}{}
	}

	var missingNames []string
	var missingKeys []string
	for key, entry := range recordsCache {
		if _, ok := onDiskKeys[key]; ok {
			continue
		}
		missingNames = append(missingNames, entry.OriginalFilename)
		missingKeys = append(missingKeys, key)
	}
	if len(missingNames) == 0 {
		return
	}
	sort.Strings(missingNames)
	list := strings.Join(missingNames, ", ")

	if !e.cfg.RemoveNonexistentFromIndex {
		logging.Renderf(e.logger, slog.LevelWarn,
			"Indexed records exist for the following nonexistent files in directory '{dir}': {list}.",
			map[string]any{"dir": dRel, "list": list})
		return
	}

	n, err := e.store.DeleteFilesInDir(ctx, dRel, missingNames)
	if err != nil {
		e.logError(ierrors.New(ierrors.ErrCodeDeleteFailure,
			fmt.Sprintf("failed to remove indexed records for nonexistent files in directory '%s'", dRel), err))
		stats.Errors++
		return
	}
	for _, key := range missingKeys {
		delete(recordsCache, key)
	}
	logging.Renderf(e.logger, slog.LevelInfo,
		"Removed {count} indexed record(s) for nonexistent files in directory '{dir}': {list}.",
		map[string]any{"count": n, "dir": dRel, "list": list})
}

// checkC2 is check C2: indexed records filed under subdirectories of
// dRel that no longer exist at all on disk. onDiskNames is every entry
// name present in dRel regardless of type: a name that still exists but
// has turned into a plain file is check C3's concern (raised later,
// from process_file), not C2's — diffing against directory-typed
// entries only would make the two checks fire for the same rename.
// Multiple stored casings of the same logical subdirectory are grouped
// by fold key so a single delete_subtree call clears all of them at
// once.
func (e *Engine) checkC2(ctx context.Context, dRel string, subdirCache map[string]struct{}, onDiskNames []string, stats *Stats) {
	onDiskKeys := make(map[string]struct{}, len(onDiskNames))
	for _, n := range onDiskNames {
		onDiskKeys[e.mode.Key(n)] = struct{}{}
	}

	groups := make(map[string][]string)
	for name := range subdirCache {
		key := e.mode.Key(name)
		if _, ok := onDiskKeys[key]; ok {
			continue
		}
		groups[key] = append(groups[key], name)
	}
	if len(groups) == 0 {
		return
	}

	keys := make([]string, 0, len(groups))
	var allCasings []string
	for k, casings := range groups {
		keys = append(keys, k)
		allCasings = append(allCasings, casings...)
	}
	sort.Strings(keys)
	sort.Strings(allCasings)
	list := strings.Join(allCasings, ", ")

	if !e.cfg.RemoveNonexistentFromIndex {
		logging.Renderf(e.logger, slog.LevelWarn,
			"Indexed records exist for files in the following nonexistent subdirectories of directory '{dir}': {list}.",
			map[string]any{"dir": dRel, "list": list})
		return
	}

	for _, k := range keys {
		casings := sortedCopy(groups[k])
		smallest := casings[0]
		subtreePath := joinRel(dRel, smallest)
		n, err := e.store.DeleteSubtree(ctx, subtreePath)
		if err != nil {
			e.logError(ierrors.New(ierrors.ErrCodeDeleteFailure,
				fmt.Sprintf("failed to remove indexed records under nonexistent directory '%s'", subtreePath), err))
			stats.Errors++
			continue
		}
		logging.Renderf(e.logger, slog.LevelInfo,
			"Removed {count} indexed record(s) for file(s) in (subdirectories of) nonexistent directory '{dir}'.",
			map[string]any{"count": n, "dir": subtreePath})
		for _, c := range casings {
			delete(subdirCache, c)
		}
	}
}

// checkC3 is check C3: a path the database still believes is a
// directory (it appears in the parent's subdirs cache) that is now a
// plain file on disk.
func (e *Engine) checkC3(ctx context.Context, parentSubdirs map[string]struct{}, fRel, basename string, stats *Stats) {
	if parentSubdirs == nil {
		return
	}
	var matched []string
	for name := range parentSubdirs {
		if e.namesEqual(name, basename) {
			matched = append(matched, name)
		}
	}
	if len(matched) == 0 {
		return
	}

	logging.Renderf(e.logger, slog.LevelWarn,
		"Indexed records exist with '{path}' (which is a file) as nonexistent base directory.",
		map[string]any{"path": fRel})
	if !e.cfg.RemoveNonexistentFromIndex {
		return
	}

	n, err := e.store.DeleteSubtree(ctx, fRel)
	if err != nil {
		e.logError(ierrors.New(ierrors.ErrCodeDeleteFailure,
			fmt.Sprintf("failed to remove indexed records under '%s'", fRel), err))
		stats.Errors++
		return
	}
	logging.Renderf(e.logger, slog.LevelInfo,
		"Removed {count} indexed record(s) for file(s) in (subdirectories of) nonexistent directory '{dir}'.",
		map[string]any{"count": n, "dir": fRel})
	for _, name := range matched {
		delete(parentSubdirs, name)
	}
}

// checkC4 is check C4: an indexed file record filed under a name that
// is now a directory on disk.
func (e *Engine) checkC4(ctx context.Context, parentDirRel string, parentRecords map[string]store.RecordCacheEntry, basename string, stats *Stats) {
	if parentRecords == nil {
		return
	}
	key := e.mode.Key(basename)
	entry, ok := parentRecords[key]
	if !ok {
		return
	}
	fileRel := joinRel(parentDirRel, entry.OriginalFilename)

	logging.Renderf(e.logger, slog.LevelWarn,
		"Indexed record exists for file '{path}', which actually matches a directory.",
		map[string]any{"path": fileRel})
	if !e.cfg.RemoveNonexistentFromIndex {
		return
	}

	n, err := e.store.DeleteFilesInDir(ctx, parentDirRel, []string{entry.OriginalFilename})
	if err != nil {
		e.logError(ierrors.New(ierrors.ErrCodeDeleteFailure,
			fmt.Sprintf("failed to remove indexed record for file '%s'", fileRel), err))
		stats.Errors++
		return
	}
	logging.Renderf(e.logger, slog.LevelInfo,
		"Removed indexed record for file '{path}' which actually matches a directory.",
		map[string]any{"path": fileRel})
	if n != 1 {
		logging.Renderf(e.logger, slog.LevelWarn,
			"Received strange value {count} while trying to remove indexed record for file '{path}' which actually matches a directory.",
			map[string]any{"count": n, "path": fileRel})
	}
	delete(parentRecords, key)
}

// logError renders an *errors.IndexError the way pathvalidate.fail does:
// the formatted message plus its code as a structured field.
func (e *Engine) logError(err *ierrors.IndexError) {
	e.logger.Error(err.Error(), slog.String("code", err.Code))
}
