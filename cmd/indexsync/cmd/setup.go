package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/indexsync/indexsync/internal/casemode"
	"github.com/indexsync/indexsync/internal/config"
	"github.com/indexsync/indexsync/internal/pathvalidate"
	"github.com/indexsync/indexsync/internal/reconcile"
	"github.com/indexsync/indexsync/internal/store"

	_ "modernc.org/sqlite"
)

// runSetup bundles everything a reconcile/watch invocation needs to
// start: an open Store, a path Validator, and a configured Engine. The
// caller is responsible for closing the Store when done.
type runSetup struct {
	cfg       *config.Config
	st        store.Store
	validator *pathvalidate.Validator
	engine    *reconcile.Engine
}

func buildRunSetup(ctx context.Context, cfg *config.Config) (*runSetup, error) {
	mode := casemode.New(cfg.CaseInsensitiveFilesystem, cfg.CaseInsensitiveDatabase)

	st, err := openStore(ctx, cfg, mode)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	validator, err := pathvalidate.New(cfg.AllowedBaseDirectory, cfg.BaseDirectory, slog.Default())
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build path validator: %w", err)
	}

	engineCfg := reconcile.EngineConfig{
		ReindexAll:                 cfg.ReindexAll,
		RemoveNonexistentFromIndex: cfg.RemoveNonexistentFromIndex,
		ProcessSymlinks:            cfg.ProcessSymlinks,
		SortDirectoryEntries:       cfg.SortDirectoryEntries,
		HashAlgo:                   cfg.HashAlgo,
	}
	engine := reconcile.NewEngine(st, mode, cfg.AllowedBaseDirectory, engineCfg, slog.Default())

	return &runSetup{cfg: cfg, st: st, validator: validator, engine: engine}, nil
}

func (r *runSetup) Close() error {
	return r.st.Close()
}

// openStore dispatches to the backend named by cfg.Store.Driver. The
// mysql backend requires the caller to have already registered a
// database/sql driver under cfg.Store.MySQLDriverName: this module
// imports no MySQL driver of its own.
func openStore(ctx context.Context, cfg *config.Config, mode casemode.Mode) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		db, err := sql.Open("sqlite", cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		s, err := store.OpenSQLite(ctx, db, cfg.Table, cfg.HashField(), mode)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		return store.OpenPostgres(ctx, cfg.Store.DSN, cfg.Table, cfg.HashField(), mode)
	case "mysql":
		return store.OpenMySQL(ctx, cfg.Store.MySQLDriverName, cfg.Store.DSN, cfg.Table, cfg.HashField(), mode)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// loadConfigForPath returns config.Load(root) when it succeeds. When
// Load fails for any reason (including a config file that leaves
// AllowedBaseDirectory unset, or one that does not parse), it returns
// NewConfig() defaults with AllowedBaseDirectory and BaseDirectory set
// to root, so a bare `indexsync reconcile .` works without a config
// file at all; that fallback carries no settings from the config files
// or the environment, and the Load error is dropped. The Load error is
// returned only if the fallback fails validation too.
func loadConfigForPath(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		if cfg = config.NewConfig(); cfg != nil {
			cfg.AllowedBaseDirectory = root
			cfg.BaseDirectory = root
			if verr := cfg.Validate(); verr == nil {
				return cfg, nil
			}
		}
		return nil, err
	}
	return cfg, nil
}
