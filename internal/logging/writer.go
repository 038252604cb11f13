package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter is an io.Writer that rotates the underlying file once
// it crosses maxSize, keeping at most maxFiles rotated generations
// (path.1 newest, path.maxFiles oldest; anything older is removed).
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu            sync.Mutex
	file          *os.File
	written       int64
	immediateSync bool
}

// NewRotatingWriter opens (or creates) path for append and returns a
// writer that rotates it once it exceeds maxSizeMB, keeping maxFiles
// rotated generations. Every write is fsync'd immediately so `indexsync
// logs -f` sees a line as soon as it lands; call SetImmediateSync(false)
// to trade that guarantee for throughput on a hot path.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:          path,
		maxSize:       int64(maxSizeMB) * 1024 * 1024,
		maxFiles:      maxFiles,
		immediateSync: true,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync toggles the per-write fsync. Disabling it buffers
// writes at the OS level for better throughput; `indexsync logs -f`
// may then lag behind the process actually producing the lines.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.immediateSync = enabled
}

// Write appends p, rotating first if it would push the file past
// maxSize. A rotation failure is logged to stderr and swallowed so a
// full disk on the rotate path doesn't take down the write itself.
func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written+int64(len(p)) > w.maxSize {
		if rotErr := w.rotate(); rotErr != nil {
			fmt.Fprintf(os.Stderr, "indexsync: log rotation failed: %v\n", rotErr)
		}
	}

	n, err = w.file.Write(p)
	w.written += int64(n)
	if w.immediateSync && err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// Close closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// rotate renames path -> path.1 -> path.2 -> ... up to maxFiles,
// dropping anything beyond that, then reopens path fresh. Generations
// are renamed highest-number-first so no rename ever clobbers one it
// hasn't moved out of the way yet.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close log file before rotating: %w", err)
		}
		w.file = nil
	}

	generations, err := w.rotatedGenerations()
	if err != nil {
		return err
	}
	sort.Slice(generations, func(i, j int) bool { return generations[i].num > generations[j].num })

	for _, g := range generations {
		if g.num >= w.maxFiles {
			_ = os.Remove(g.path)
			continue
		}
		_ = os.Rename(g.path, fmt.Sprintf("%s.%d", w.path, g.num+1))
	}

	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.path+".1"); err != nil {
			return fmt.Errorf("rotate log file: %w", err)
		}
	}

	w.written = 0
	return w.openFile()
}

type rotatedGeneration struct {
	path string
	num  int
}

func (w *RotatingWriter) rotatedGenerations() ([]rotatedGeneration, error) {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return nil, fmt.Errorf("list rotated log files: %w", err)
	}

	base := filepath.Base(w.path)
	var generations []rotatedGeneration
	for _, m := range matches {
		suffix := strings.TrimPrefix(filepath.Base(m), base+".")
		num, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		generations = append(generations, rotatedGeneration{path: m, num: num})
	}
	return generations, nil
}
