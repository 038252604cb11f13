package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/indexsync/indexsync/internal/lock"
	"github.com/indexsync/indexsync/internal/pathvalidate"
)

// checkStatus is the outcome of a single diagnostic check.
type checkStatus int

const (
	statusPass checkStatus = iota
	statusWarn
	statusFail
)

func (s checkStatus) String() string {
	switch s {
	case statusPass:
		return "pass"
	case statusWarn:
		return "warn"
	case statusFail:
		return "fail"
	default:
		return "unknown"
	}
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Diagnose configuration, store, and lock issues for a root",
		Long: `doctor runs a handful of quick checks against a root without
performing a reconcile pass:

  - configuration loads and validates
  - the configured store opens and responds to a ping
  - the root lock can be acquired (and is released again immediately)
  - the path validator can be built against the allowed base directory

Use --json for machine-readable output.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runDoctor(cmd, root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, rootArg string, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var results []checkResult

	root, err := filepath.Abs(rootArg)
	if err != nil {
		results = append(results, checkResult{Name: "resolve-path", Status: statusFail.String(), Message: err.Error()})
		return report(cmd, results, jsonOutput)
	}

	cfg, err := loadConfigForPath(root)
	if err != nil {
		results = append(results, checkResult{Name: "config", Status: statusFail.String(), Message: err.Error()})
		return report(cmd, results, jsonOutput)
	}
	results = append(results, checkResult{Name: "config", Status: statusPass.String(), Message: fmt.Sprintf("allowed base directory: %s", cfg.AllowedBaseDirectory)})

	if _, err := pathvalidate.New(cfg.AllowedBaseDirectory, cfg.BaseDirectory, slog.Default()); err != nil {
		results = append(results, checkResult{Name: "path-validator", Status: statusFail.String(), Message: err.Error()})
	} else {
		results = append(results, checkResult{Name: "path-validator", Status: statusPass.String(), Message: "builds cleanly"})
	}

	rs, err := buildRunSetup(ctx, cfg)
	if err != nil {
		results = append(results, checkResult{Name: "store", Status: statusFail.String(), Message: err.Error()})
	} else {
		results = append(results, checkResult{Name: "store", Status: statusPass.String(), Message: fmt.Sprintf("connected (driver=%s table=%s)", cfg.Store.Driver, cfg.Table)})
		_ = rs.Close()
	}

	rootLock := lock.NewRootLock(cfg.AllowedBaseDirectory)
	acquired, err := rootLock.TryLock()
	switch {
	case err != nil:
		results = append(results, checkResult{Name: "lock", Status: statusFail.String(), Message: err.Error()})
	case !acquired:
		results = append(results, checkResult{Name: "lock", Status: statusWarn.String(), Message: "held by another process"})
	default:
		_ = rootLock.Unlock()
		results = append(results, checkResult{Name: "lock", Status: statusPass.String(), Message: "acquired and released"})
	}

	return report(cmd, results, jsonOutput)
}

func report(cmd *cobra.Command, results []checkResult, jsonOutput bool) error {
	failed := false
	for _, r := range results {
		if r.Status == statusFail.String() {
			failed = true
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Checks []checkResult `json:"checks"`
			Failed bool          `json:"failed"`
		}{Checks: results, Failed: failed}); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		}
	}

	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	return nil
}
