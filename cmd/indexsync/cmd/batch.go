package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/indexsync/indexsync/internal/lock"
	"github.com/indexsync/indexsync/internal/reconcile"
)

type batchFlags struct {
	reindexAll, removeMissing, insensitiveDB, insensitiveFS, processSymlinks, sortEntries, progress bool
	storeDSN                                                                                        string
}

// runBatch reconciles multiple independent roots concurrently, one
// process_paths call per root, each with its own store connection,
// lock, and Stats, aggregating a combined total at the end.
func runBatch(ctx context.Context, cmd *cobra.Command, roots []string, flags batchFlags) error {
	type result struct {
		root  string
		stats reconcile.Stats
		err   error
	}

	results := make([]result, len(roots))
	g, gctx := errgroup.WithContext(ctx)

	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			absRoot, err := filepath.Abs(root)
			if err != nil {
				results[i] = result{root: root, err: err}
				return nil
			}
			cfg, err := loadConfigForPath(absRoot)
			if err != nil {
				results[i] = result{root: root, err: err}
				return nil
			}
			applyFlagOverrides(cmd, cfg, flags.reindexAll, flags.removeMissing, flags.insensitiveDB, flags.insensitiveFS, flags.processSymlinks, flags.sortEntries, flags.storeDSN)

			rs, err := buildRunSetup(gctx, cfg)
			if err != nil {
				results[i] = result{root: root, err: err}
				return nil
			}
			defer rs.Close()

			rootLock := lock.NewRootLock(cfg.AllowedBaseDirectory)
			acquired, err := rootLock.TryLock()
			if err != nil || !acquired {
				results[i] = result{root: root, err: fmt.Errorf("acquire lock on %s: %w", cfg.AllowedBaseDirectory, err)}
				return nil
			}
			defer rootLock.Unlock()

			_, stats, err := rs.engine.ProcessPaths(gctx, rs.validator, []string{absRoot})
			results[i] = result{root: root, stats: stats, err: err}
			if err == nil {
				_ = writeLastStats(cfg.AllowedBaseDirectory, stats)
			}
			return nil
		})
	}
	_ = g.Wait()

	var total reconcile.Stats
	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.root, r.err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: new=%d updated=%d equal=%d skipped=%d errors=%d\n",
			r.root, r.stats.New, r.stats.Updated, r.stats.Equal, r.stats.Skipped, r.stats.Errors)
		total.New += r.stats.New
		total.Updated += r.stats.Updated
		total.Equal += r.stats.Equal
		total.Skipped += r.stats.Skipped
		total.SymlinksSkipped += r.stats.SymlinksSkipped
		total.Errors += r.stats.Errors
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total: new=%d updated=%d equal=%d skipped=%d errors=%d\n",
		total.New, total.Updated, total.Equal, total.Skipped, total.Errors)

	if failed > 0 {
		return fmt.Errorf("%d of %d root(s) failed", failed, len(roots))
	}
	if total.Errors > 0 {
		return fmt.Errorf("reconcile completed with %d error(s)", total.Errors)
	}
	return nil
}
