//go:build windows

package lockfile

import (
	"os"

	"golang.org/x/sys/windows"
)

// windowsLocker uses LockFileEx range locks over the whole file.
type windowsLocker struct{}

func (windowsLocker) Lock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, ^uint32(0), ^uint32(0), ol)
}

func (windowsLocker) Unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, ^uint32(0), ^uint32(0), ol)
}

func newPlatformLocker() FileLocker {
	return windowsLocker{}
}
