//go:build unix

package lockfile

import (
	"os"
	"syscall"
)

// unixLocker uses advisory flock(2) locks. Blocking: the clock write holds
// the lock for microseconds, so waiting is cheaper than a retry loop.
type unixLocker struct{}

func (unixLocker) Lock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

func (unixLocker) Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

func newPlatformLocker() FileLocker {
	return unixLocker{}
}
