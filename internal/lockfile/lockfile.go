// Package lockfile provides a scoped exclusive lock on a filesystem path.
// The backend is chosen at build time: flock(2) on unix, LockFileEx on
// windows. Locks are advisory and process-scoped.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
)

var ErrLocked = fmt.Errorf("file is locked by another process")

// FileLocker abstracts the platform locking primitive.
type FileLocker interface {
	Lock(f *os.File) error
	Unlock(f *os.File) error
}

// New returns the platform-appropriate locker.
func New() FileLocker {
	return newPlatformLocker()
}

// WithLock runs fn while holding an exclusive lock on path+".lock". The lock
// file's parent directory is created if missing. The lock is held only for
// the duration of fn.
func WithLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	if dir := filepath.Dir(lockPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lock directory: %w", err)
		}
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	locker := New()
	if err := locker.Lock(f); err != nil {
		return fmt.Errorf("acquire lock on %s: %w", lockPath, err)
	}
	defer locker.Unlock(f)
	return fn()
}
