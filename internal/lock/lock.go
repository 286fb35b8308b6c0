// Package lock implements the advisory whole-process build lock.
//
// Grounded on gprovision's pervasive use of golang.org/x/sys/unix for
// low-level syscalls (pkg/hw/uefi, pkg/init) rather than a pure-Go
// reimplementation of flock semantics.
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/robinei/darch/internal/dierr"
)

const DefaultPath = "/var/lock/darch.lock"

// Lock is a held advisory exclusive lock. Release is idempotent.
type Lock struct {
	path string
	f    *os.File
}

// Acquire attempts a non-blocking exclusive lock on path. If another
// process holds it, it returns a *dierr.AlreadyRunning naming path and,
// if available, the holder information written into the lock file.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		return nil, &dierr.AlreadyRunning{LockPath: path, Holder: holder}
	}
	if err := f.Truncate(0); err == nil {
		f.Seek(0, 0)
		fmt.Fprintf(f, "pid=%d host=%s\n", os.Getpid(), hostname())
		f.Sync()
	}
	return &Lock{path: path, f: f}, nil
}

// Release drops the lock. Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("lock: unlock %s: %w", l.path, err)
	}
	return cerr
}

func readHolder(f *os.File) string {
	buf := make([]byte, 256)
	n, _ := f.ReadAt(buf, 0)
	if n <= 0 {
		return ""
	}
	return string(buf[:n])
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
