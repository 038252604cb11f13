// Package watch implements continuous reconciliation: instead of
// handing raw filesystem events to a caller, it coalesces them and
// re-invokes reconcile.Engine.ProcessPaths on whichever directories
// changed.
package watch

import "time"

// Operation enumerates the kinds of filesystem change the debouncer
// needs to distinguish. There is no ignore-file or live-config-reload
// concept here, so no corresponding operations exist for those.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single detected filesystem change, relative to the
// watched root.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher, mirroring internal/watcher.Options.
type Options struct {
	// DebounceWindow is how long to coalesce events before triggering a
	// reconcile pass over the directories they touched.
	DebounceWindow time.Duration
	// PollInterval is the scan interval used by the polling fallback.
	PollInterval time.Duration
	// EventBufferSize bounds the internal event channel.
	EventBufferSize int
}

// DefaultOptions mirrors internal/watcher.DefaultOptions.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults fills zero-valued fields the way
// internal/watcher.Options.WithDefaults does.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
