// Package lock provides a cross-process advisory lock guarding a single
// allowed base directory against concurrent reconciliation runs. The
// reconcile engine assumes a single writer per table; this lock is how
// the CLI enforces that assumption across separate processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const lockFileName = ".indexsync.lock"

// RootLock is an exclusive, cross-process lock scoped to one allowed
// base directory.
type RootLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRootLock creates a lock for the given allowed base directory. The
// lock file is created at <allowedBaseDirectory>/.indexsync.lock.
func NewRootLock(allowedBaseDirectory string) *RootLock {
	path := filepath.Join(allowedBaseDirectory, lockFileName)
	return &RootLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Lock acquires the exclusive lock, blocking until it is available.
func (l *RootLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire root lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking. Returns false,
// nil if another process already holds it.
func (l *RootLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire root lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call multiple times or when unlocked.
func (l *RootLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release root lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the path to the lock file.
func (l *RootLock) Path() string {
	return l.path
}

// IsLocked reports whether this handle currently holds the lock.
func (l *RootLock) IsLocked() bool {
	return l.locked
}
