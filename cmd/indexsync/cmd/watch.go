package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/indexsync/indexsync/internal/lock"
	"github.com/indexsync/indexsync/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		reindexAll      bool
		removeMissing   bool
		insensitiveDB   bool
		insensitiveFS   bool
		processSymlinks bool
		sortEntries     bool
		storeDSN        string
	)

	cmd := &cobra.Command{
		Use:   "watch <root>",
		Short: "Keep a root continuously reconciled",
		Long: `watch runs an initial reconcile pass over root, then keeps it
reconciled as the filesystem changes, coalescing bursts of events into
batched re-reconcile passes over the directories they touched.

A rename surfaces as a delete event and a create event, the same as a
one-shot reconcile would see it; watch does not track renames across
paths.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			cfg, err := loadConfigForPath(root)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			applyFlagOverrides(cmd, cfg, reindexAll, removeMissing, insensitiveDB, insensitiveFS, processSymlinks, sortEntries, storeDSN)

			rs, err := buildRunSetup(ctx, cfg)
			if err != nil {
				return err
			}
			defer rs.Close()

			rootLock := lock.NewRootLock(cfg.AllowedBaseDirectory)
			acquired, err := rootLock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire root lock: %w", err)
			}
			if !acquired {
				return fmt.Errorf("another indexsync process holds the lock on %s", cfg.AllowedBaseDirectory)
			}
			defer rootLock.Unlock()

			fmt.Fprintf(cmd.OutOrStdout(), "performing initial reconcile of %s...\n", root)
			_, stats, err := rs.engine.ProcessPaths(ctx, rs.validator, []string{root})
			if err != nil {
				return err
			}
			_ = writeLastStats(cfg.AllowedBaseDirectory, stats)
			fmt.Fprintf(cmd.OutOrStdout(), "initial reconcile done: new=%d updated=%d equal=%d skipped=%d errors=%d\n",
				stats.New, stats.Updated, stats.Equal, stats.Skipped, stats.Errors)

			opts := watch.DefaultOptions()
			if cfg.Watch.Debounce != "" {
				if d, err := time.ParseDuration(cfg.Watch.Debounce); err == nil {
					opts.DebounceWindow = d
				}
			}

			w, err := watch.New(rs.engine, rs.validator, root, opts)
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes...\n", root)
			err = w.Run(ctx)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&reindexAll, "reindex-all", false, "re-hash and rewrite every file, even unchanged ones")
	cmd.Flags().BoolVar(&removeMissing, "remove-nonexistent", false, "delete indexed records with no corresponding file on disk")
	cmd.Flags().BoolVar(&insensitiveDB, "case-insensitive-db", false, "treat the store's path columns as case-insensitive")
	cmd.Flags().BoolVar(&insensitiveFS, "case-insensitive-fs", false, "treat the filesystem as case-insensitive")
	cmd.Flags().BoolVar(&processSymlinks, "process-symlinks", false, "follow symlinks instead of skipping them")
	cmd.Flags().BoolVar(&sortEntries, "sort-entries", false, "sort directory entries before processing, for deterministic log order")
	cmd.Flags().StringVar(&storeDSN, "store", "", "override the configured store DSN")

	return cmd
}
