package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/indexsync/indexsync/internal/reconcile"
)

const lastRunFileName = ".indexsync-last-run.json"

// lastRun is the bookkeeping record `indexsync stats` reads back
// without re-walking the tree.
type lastRun struct {
	Stats     reconcile.Stats `json:"stats"`
	FinishedAt time.Time      `json:"finished_at"`
}

func writeLastStats(allowedBaseDirectory string, stats reconcile.Stats) error {
	path := filepath.Join(allowedBaseDirectory, lastRunFileName)
	data, err := json.MarshalIndent(lastRun{Stats: stats, FinishedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readLastStats(allowedBaseDirectory string) (lastRun, error) {
	path := filepath.Join(allowedBaseDirectory, lastRunFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return lastRun{}, fmt.Errorf("no recorded run for %s: %w", allowedBaseDirectory, err)
	}
	var lr lastRun
	if err := json.Unmarshal(data, &lr); err != nil {
		return lastRun{}, fmt.Errorf("parse run record: %w", err)
	}
	return lr, nil
}
