// Package reconcile implements the reconciliation engine: a
// synchronous, single-threaded depth-first walk that brings a
// store.Store's (dir, filename, hash) rows in line with a live
// filesystem tree, emitting a fixed set of warning/info lines callers
// can match against in tests. Shaped as a set-diff-against-a-source-
// of-truth walk with per-directory caches, generalized from a single
// in-memory ID comparison to a recursive directory walk.
package reconcile

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/indexsync/indexsync/internal/casemode"
	ierrors "github.com/indexsync/indexsync/internal/errors"
	"github.com/indexsync/indexsync/internal/logging"
	"github.com/indexsync/indexsync/internal/pathvalidate"
	"github.com/indexsync/indexsync/internal/store"
)

// EngineConfig is the subset of the project configuration that
// governs reconciliation behavior (as opposed to store connection or
// path-validation setup, which live in their own packages).
type EngineConfig struct {
	ReindexAll                 bool
	RemoveNonexistentFromIndex bool
	ProcessSymlinks            bool
	SortDirectoryEntries       bool
	HashAlgo                   string
}

// Stats accumulates the six counters summarized at the end of a
// ProcessPaths call.
type Stats struct {
	New             int
	Updated         int
	Equal           int
	Skipped         int
	SymlinksSkipped int
	Errors          int
}

// caches is the owned-per-walk pair of structures: created empty at
// the start of ProcessPaths, mutated only during the walk, and
// asserted empty again at the end.
type caches struct {
	records map[string]map[string]store.RecordCacheEntry
	subdirs map[string]map[string]struct{}
}

func newCaches() *caches {
	return &caches{
		records: make(map[string]map[string]store.RecordCacheEntry),
		subdirs: make(map[string]map[string]struct{}),
	}
}

// Engine runs ProcessPaths against one Store under one casemode.Mode.
// It is single-threaded and synchronous: one Engine value must not be
// shared across concurrent ProcessPaths calls.
type Engine struct {
	store       store.Store
	mode        casemode.Mode
	allowedRoot string
	cfg         EngineConfig
	logger      *slog.Logger
	statsSink   func(Stats)
}

// NewEngine builds an Engine rooted at allowedRoot (the same absolute
// path a pathvalidate.Validator for this run was constructed with).
func NewEngine(st store.Store, mode casemode.Mode, allowedRoot string, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:       st,
		mode:        mode,
		allowedRoot: filepath.Clean(allowedRoot),
		cfg:         cfg,
		logger:      logger,
	}
}

// SetStatsSink registers a callback invoked with a Stats snapshot after
// every file decision made during ProcessPaths, for a live progress
// display to subscribe to. The default (nil) sink is never called, so
// headless use pays nothing for it.
func (e *Engine) SetStatsSink(sink func(Stats)) {
	e.statsSink = sink
}

func (e *Engine) emitSnapshot(stats Stats) {
	if e.statsSink != nil {
		e.statsSink(stats)
	}
}

// ProcessPaths is the top-level process_paths(paths[]) -> bool
// operation, generalized with an explicit Stats return and a distinct
// error return for the one failure considered fatal (a failed
// UPDATE). It validates every input before touching the store; if any
// input fails
// validation, no path is processed and it returns false with no error
// (the validator has already logged the cause once).
func (e *Engine) ProcessPaths(ctx context.Context, validator *pathvalidate.Validator, inputs []string) (bool, Stats, error) {
	var stats Stats
	c := newCaches()

	type target struct {
		abs, rel string
	}
	targets := make([]target, 0, len(inputs))
	for _, in := range inputs {
		canonical, err := validator.Validate(in, true)
		if err != nil {
			return false, stats, nil
		}
		rel, err := e.relFromRoot(canonical)
		if err != nil {
			return false, stats, nil
		}
		targets = append(targets, target{abs: canonical, rel: rel})
	}

	for _, t := range targets {
		if err := e.processFileOrDir(ctx, c, t.abs, t.rel, &stats); err != nil {
			return false, stats, err
		}
	}

	e.summarize(&stats)

	if len(c.records) != 0 || len(c.subdirs) != 0 {
		e.logger.Warn(ierrors.New(ierrors.ErrCodeCacheInvariant,
			"cache not empty at end of process_paths call", nil).
			WithDetail("records_dirs", fmt.Sprintf("%d", len(c.records))).
			WithDetail("subdirs_dirs", fmt.Sprintf("%d", len(c.subdirs))).
			Error())
	}

	return true, stats, nil
}

// relFromRoot computes the "/"-separated path of canonical relative to
// the allowed root; the root itself maps to "".
func (e *Engine) relFromRoot(canonical string) (string, error) {
	rel, err := filepath.Rel(e.allowedRoot, canonical)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// summarize emits the six counter lines, in order, only for non-zero
// counters.
func (e *Engine) summarize(stats *Stats) {
	if stats.New > 0 {
		logging.Renderf(e.logger, slog.LevelInfo, "Added {count} new file(s).", map[string]any{"count": stats.New})
	}
	if stats.Updated > 0 {
		logging.Renderf(e.logger, slog.LevelInfo, "Updated {count} file(s).", map[string]any{"count": stats.Updated})
	}
	if stats.Equal > 0 {
		logging.Renderf(e.logger, slog.LevelInfo, "Reindexed {count} file(s) which were already indexed and equal.", map[string]any{"count": stats.Equal})
	}
	if stats.Skipped > 0 {
		logging.Renderf(e.logger, slog.LevelInfo, "Skipped {count} already indexed file(s).", map[string]any{"count": stats.Skipped})
	}
	if stats.SymlinksSkipped > 0 {
		logging.Renderf(e.logger, slog.LevelInfo, "Skipped {count} symlink(s).", map[string]any{"count": stats.SymlinksSkipped})
	}
	if stats.Errors > 0 {
		logging.Renderf(e.logger, slog.LevelWarn, "Encountered {count} indexing error(s).", map[string]any{"count": stats.Errors})
	}
}

// joinRel renders a (dir, filename) pair the way log messages do:
// "dir/filename", or just "filename" at the root.
func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// splitRel splits a "/"-joined relative path into its parent dir and
// final component. The root itself ("") splits to ("", "").
func splitRel(rel string) (dir, base string) {
	if rel == "" {
		return "", ""
	}
	if idx := strings.LastIndexByte(rel, '/'); idx >= 0 {
		return rel[:idx], rel[idx+1:]
	}
	return "", rel
}

// hashFile computes the lowercase-hex digest of path, algorithm
// selected by the hash_algo config key.
func hashFile(path, algo string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var h hash.Hash
	switch strings.ToLower(algo) {
	case "", "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	case "md5":
		h = md5.New()
	default:
		return "", fmt.Errorf("unsupported hash_algo %q", algo)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// namesEqual compares two path components under the engine's active
// matching mode.
func (e *Engine) namesEqual(a, b string) bool {
	if e.mode.MatchesInsensitively() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// sortedCopy returns a sorted copy of names, used wherever stable,
// deterministic log output is required.
func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
