package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indexsync/indexsync/internal/config"
	"github.com/indexsync/indexsync/internal/lock"
	"github.com/indexsync/indexsync/internal/tui"
)

func newReconcileCmd() *cobra.Command {
	var (
		reindexAll      bool
		removeMissing   bool
		insensitiveDB   bool
		insensitiveFS   bool
		processSymlinks bool
		sortEntries     bool
		storeDSN        string
		progress        bool
		roots           []string
	)

	cmd := &cobra.Command{
		Use:   "reconcile [path...]",
		Short: "Bring the indexed table in line with what is on disk",
		Long: `reconcile walks the given paths (or the current directory, if none
are given) and brings the configured store's (dir, filename, hash)
records in line with the filesystem.

Flags mirror the project configuration file's keys; an explicit flag
always overrides the file.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(roots) > 0 {
				return runBatch(ctx, cmd, roots, batchFlags{
					reindexAll: reindexAll, removeMissing: removeMissing,
					insensitiveDB: insensitiveDB, insensitiveFS: insensitiveFS,
					processSymlinks: processSymlinks, sortEntries: sortEntries,
					storeDSN: storeDSN, progress: progress,
				})
			}

			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}
			root, err := filepath.Abs(paths[0])
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

			var renderer tui.Renderer
			if progress {
				renderer = tui.NewRenderer(tui.Config{Output: cmd.OutOrStdout()})
				rs.engine.SetStatsSink(renderer.Update)
				_ = renderer.Start(ctx)
			}

			ok, stats, err := rs.engine.ProcessPaths(ctx, rs.validator, paths)

			if renderer != nil {
				renderer.Finish(ok, stats, err)
				_ = renderer.Stop()
			}

			if err != nil {
				return err
			}
			if err := writeLastStats(cfg.AllowedBaseDirectory, stats); err != nil {
				return fmt.Errorf("persist run stats: %w", err)
			}
			if !ok {
				return fmt.Errorf("one or more input paths failed validation")
			}
			if stats.Errors > 0 {
				return fmt.Errorf("reconcile completed with %d error(s)", stats.Errors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reindexAll, "reindex-all", false, "re-hash and rewrite every file, even unchanged ones")
	cmd.Flags().BoolVar(&removeMissing, "remove-nonexistent", false, "delete indexed records with no corresponding file on disk")
	cmd.Flags().BoolVar(&insensitiveDB, "case-insensitive-db", false, "treat the store's path columns as case-insensitive")
	cmd.Flags().BoolVar(&insensitiveFS, "case-insensitive-fs", false, "treat the filesystem as case-insensitive")
	cmd.Flags().BoolVar(&processSymlinks, "process-symlinks", false, "follow symlinks instead of skipping them")
	cmd.Flags().BoolVar(&sortEntries, "sort-entries", false, "sort directory entries before processing, for deterministic log order")
	cmd.Flags().StringVar(&storeDSN, "store", "", "override the configured store DSN")
	cmd.Flags().BoolVar(&progress, "progress", false, "render a live progress display")
	cmd.Flags().StringArrayVar(&roots, "root", nil, "reconcile multiple independent roots concurrently (repeatable); disables positional path args")

	return cmd
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, reindexAll, removeMissing, insensitiveDB, insensitiveFS, processSymlinks, sortEntries bool, storeDSN string) {
	if cmd.Flags().Changed("reindex-all") {
		cfg.ReindexAll = reindexAll
	}
	if cmd.Flags().Changed("remove-nonexistent") {
		cfg.RemoveNonexistentFromIndex = removeMissing
	}
	if cmd.Flags().Changed("case-insensitive-db") {
		cfg.CaseInsensitiveDatabase = insensitiveDB
	}
	if cmd.Flags().Changed("case-insensitive-fs") {
		cfg.CaseInsensitiveFilesystem = insensitiveFS
	}
	if cmd.Flags().Changed("process-symlinks") {
		cfg.ProcessSymlinks = processSymlinks
	}
	if cmd.Flags().Changed("sort-entries") {
		cfg.SortDirectoryEntries = sortEntries
	}
	if storeDSN != "" {
		cfg.Store.DSN = storeDSN
	}
}
