package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats <root>",
		Short: "Print the last recorded reconcile stats for a root",
		Long: `stats prints the counters from the most recent reconcile or watch
pass over root, without re-walking the tree. Run 'indexsync reconcile'
or 'indexsync watch' first to produce a record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			lr, err := readLastStats(root)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(lr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "last run: %s\n", lr.FinishedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(cmd.OutOrStdout(), "new=%d updated=%d equal=%d skipped=%d symlinks_skipped=%d errors=%d\n",
				lr.Stats.New, lr.Stats.Updated, lr.Stats.Equal, lr.Stats.Skipped, lr.Stats.SymlinksSkipped, lr.Stats.Errors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
