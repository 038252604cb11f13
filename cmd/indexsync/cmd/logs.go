package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indexsync/indexsync/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		logFile string
		level   string
		pattern string
		lines   int
		follow  bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Tail or follow the rotating debug log",
		Long: `logs reads the JSON log file every indexsync command writes to
(at debug level when run with --debug). Without -f it prints the last
N lines and exits; with -f it
keeps the file open and prints new lines as they are appended, like
'indexsync logs -f'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(logFile)
			if err != nil {
				return err
			}

			var re *regexp.Regexp
			if pattern != "" {
				re, err = regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
			}

			v := logging.NewViewer(logging.ViewerConfig{
				Level:   level,
				Pattern: re,
				NoColor: noColor,
			}, cmd.OutOrStdout())

			entries, err := v.Tail(path, lines)
			if err != nil {
				return err
			}
			v.Print(entries)

			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return followLogs(ctx, v, path)
		},
	}

	cmd.Flags().StringVar(&logFile, "file", "", "log file to read (default: the standard indexsync log path)")
	cmd.Flags().StringVar(&level, "level", "", "minimum level to show (debug, info, warn, error)")
	cmd.Flags().StringVar(&pattern, "grep", "", "only show lines whose raw JSON matches this regexp")
	cmd.Flags().IntVar(&lines, "lines", 50, "number of trailing lines to print before following")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep reading and print new lines as they arrive")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI color in level labels")

	return cmd
}

func followLogs(ctx context.Context, v *logging.Viewer, path string) error {
	entries := make(chan logging.LogEntry, 64)
	errCh := make(chan error, 1)
	go func() {
		errCh <- v.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			v.Print([]logging.LogEntry{entry})
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
