// Package cmd provides the CLI commands for indexsync.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/indexsync/indexsync/internal/logging"
	"github.com/indexsync/indexsync/pkg/version"
)

var (
	cfgFile  string
	debugLog bool
)

// NewRootCmd creates the root command for the indexsync CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexsync",
		Short: "Reconcile a filesystem tree against a hash-indexed database table",
		Long: `indexsync keeps a SQL table of (directory, filename, content hash)
records in sync with a filesystem tree.

Run 'indexsync reconcile <path...>' to bring the index up to date with
what is currently on disk, or 'indexsync watch <root>' to keep it
reconciled continuously.`,
		Version:            version.Version,
		SilenceUsage:       true,
		PersistentPreRunE:  setupLogging,
		PersistentPostRunE: teardownLogging,
	}
	cmd.SetVersionTemplate("indexsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to .indexsync.yaml (default: search upward from cwd)")
	cmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "enable debug logging")

	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs a level-appropriate slog.Logger: a rotating
// JSON log file under the user's log directory, tee'd to stderr.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugLog {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return err
	}
	logCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

var logCleanup func()

func teardownLogging(_ *cobra.Command, _ []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
