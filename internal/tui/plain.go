package tui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/indexsync/indexsync/internal/reconcile"
)

// plainRenderer writes one line per Update call, for CI environments
// and piped output, mirroring internal/ui.PlainRenderer.
type plainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPlainRenderer(cfg Config) *plainRenderer {
	return &plainRenderer{out: cfg.Output}
}

func (r *plainRenderer) Start(ctx context.Context) error { return nil }

func (r *plainRenderer) Update(stats reconcile.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "new=%d updated=%d equal=%d skipped=%d symlinks_skipped=%d errors=%d\n",
		stats.New, stats.Updated, stats.Equal, stats.Skipped, stats.SymlinksSkipped, stats.Errors)
}

func (r *plainRenderer) Finish(ok bool, stats reconcile.Stats, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "done"
	if !ok {
		status = "aborted"
	}
	_, _ = fmt.Fprintf(r.out, "%s: new=%d updated=%d equal=%d skipped=%d symlinks_skipped=%d errors=%d\n",
		status, stats.New, stats.Updated, stats.Equal, stats.Skipped, stats.SymlinksSkipped, stats.Errors)
	if err != nil {
		_, _ = fmt.Fprintf(r.out, "error: %v\n", err)
	}
}

func (r *plainRenderer) Stop() error { return nil }
