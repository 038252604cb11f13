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

// dedup is the deduplication routine: called whenever the
// filesystem is case-insensitive but the database is not
// (casemode.Mode.NeedsDedup), it collapses rows that collide once
// folded to the same key, keeping the one row whose exact dir/filename
// is present on disk (falling back to the lexicographically smallest
// casing when none is) and deleting the rest.
//
// dir and onDiskNames describe the directory the rows came from: dir is
// its on-disk casing, onDiskNames is the exact-case filenames currently
// present there. Processing order is fold-key ascending, then casing
// ascending within a group, which is what makes the resulting log lines
// deterministic.
func (e *Engine) dedup(ctx context.Context, rows []store.RecordCacheEntry, dir string, onDiskNames []string) ([]store.RecordCacheEntry, error) {
	onDiskSet := make(map[string]struct{}, len(onDiskNames))
	for _, n := range onDiskNames {
		onDiskSet[n] = struct{}{}
	}

	groups := make(map[string][]store.RecordCacheEntry)
	for _, r := range rows {
		key := strings.ToLower(r.OriginalFilename)
		groups[key] = append(groups[key], r)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]store.RecordCacheEntry, 0, len(rows))
	for _, key := range keys {
		group := groups[key]
		if len(group) == 1 {
			result = append(result, group[0])
			continue
		}

		sort.Slice(group, func(i, j int) bool { return group[i].OriginalFilename < group[j].OriginalFilename })

		keepIdx := -1
		for i, r := range group {
			if r.OriginalDir != dir {
				continue
			}
			if _, ok := onDiskSet[r.OriginalFilename]; ok {
				keepIdx = i
				break
			}
		}
		if keepIdx == -1 {
			keepIdx = 0
		}
		kept := group[keepIdx]
		result = append(result, kept)

		for i, r := range group {
			if i == keepIdx {
				continue
			}
			if err := e.store.DeleteByFID(ctx, r.Record.FID); err != nil {
				return nil, ierrors.New(ierrors.ErrCodeDeleteFailure,
					fmt.Sprintf("failed to remove duplicate record for '%s'", joinRel(r.OriginalDir, r.OriginalFilename)), err)
			}
			logging.Renderf(e.logger, slog.LevelWarn,
				"Removed record for '{removed}' because another record for '{kept}' exists. These records are duplicate because the file system is apparently case insensitive.",
				map[string]any{
					"removed": joinRel(r.OriginalDir, r.OriginalFilename),
					"kept":    joinRel(kept.OriginalDir, kept.OriginalFilename),
				})
		}
	}
	return result, nil
}
