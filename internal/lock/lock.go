// Package lock serializes invocations against one repository root with an
// exclusive advisory flock on a sentinel file.
//
// The lock is process-wide and covers every command, reads included. It is
// held until Release or process exit; the kernel drops it either way.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FileName is the sentinel file inside the repository root. Its content is
// never read or written.
const FileName = ".lock"

// ErrLockFile indicates the sentinel file could not be opened or created.
var ErrLockFile = errors.New("open lock file")

// Lock is a held exclusive lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire opens (creating if needed) root/.lock and blocks until an
// exclusive lock on it is held. There is no timeout.
func Acquire(root string, logger *slog.Logger) (*Lock, error) {
	path := filepath.Join(root, FileName)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrLockFile, path, err)
	}
	fd := int(f.Fd())

	err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return &Lock{f: f, path: path}, nil
	}
	if !errors.Is(err, unix.EWOULDBLOCK) {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if logger != nil {
		logger.Info("waiting for exclusive lock", "path", path)
	}
	for {
		err = unix.Flock(fd, unix.LOCK_EX)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the sentinel file path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the sentinel file. Calling it more than once is
// a no-op.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}
