// Package tui renders a live progress display for a reconcile pass,
// adapted from internal/ui's bubbletea-based indexing progress display.
// A renderer is fed reconcile.Stats snapshots over the engine's
// StatsSink callback; headless CLI use (the default) never constructs
// one, so bubbletea is only pulled in when --progress is requested.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/indexsync/indexsync/internal/reconcile"
)

// Renderer displays reconcile progress as it happens.
type Renderer interface {
	Start(ctx context.Context) error
	Update(stats reconcile.Stats)
	Finish(ok bool, stats reconcile.Stats, err error)
	Stop() error
}

// Config configures a Renderer.
type Config struct {
	Output     io.Writer
	NoColor    bool
	ForcePlain bool
}

// NewRenderer picks a bubbletea renderer for interactive terminals and
// a plain line-based one otherwise, mirroring internal/ui.NewRenderer's
// selection order.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !isTTY(cfg.Output) {
		return newPlainRenderer(cfg)
	}
	r, err := newTUIRenderer(cfg)
	if err != nil {
		return newPlainRenderer(cfg)
	}
	return r
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// tuiRenderer drives a bubbletea program from reconcile.Stats updates.
type tuiRenderer struct {
	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	started bool
}

func newTUIRenderer(cfg Config) (*tuiRenderer, error) {
	if !isTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	m := newModel(getStyles(cfg.NoColor))

	var opts []tea.ProgramOption
	if f, ok := cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	return &tuiRenderer{
		program: tea.NewProgram(m, opts...),
		done:    make(chan struct{}),
	}, nil
}

func (r *tuiRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.started = true
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *tuiRenderer) Update(stats reconcile.Stats) {
	r.program.Send(statsMsg(stats))
}

func (r *tuiRenderer) Finish(ok bool, stats reconcile.Stats, err error) {
	r.program.Send(finishMsg{ok: ok, stats: stats, err: err})
}

func (r *tuiRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}
