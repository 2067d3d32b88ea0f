// Package lock provides advisory cross-process file locks.
//
// Locks guard install cache entries so that two am processes installing
// the same release do not download or rename over each other. They are
// advisory: only cooperating processes are excluded.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"am/internal/domain"
)

// ErrLocked is returned by tryLock when another process holds the lock.
var ErrLocked = domain.ErrLockHeld

const defaultPollInterval = 100 * time.Millisecond

// FileLocker acquires exclusive locks on lock files.
type FileLocker struct {
	pollInterval time.Duration
}

// NewFileLocker creates a FileLocker.
func NewFileLocker() *FileLocker {
	return &FileLocker{pollInterval: defaultPollInterval}
}

// Lock blocks until the lock at path is held or ctx is done. The
// returned unlock releases it and is safe to call more than once.
func (l *FileLocker) Lock(ctx context.Context, path string) (func() error, error) {
	f, err := openLockFile(path)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		err := tryLock(f)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrLocked) {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, fmt.Errorf("wait for lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
	return held(f), nil
}

// TryLock takes the lock at path only if it is free. A busy lock yields
// an error matching domain.ErrLockHeld.
func (l *FileLocker) TryLock(path string) (func() error, error) {
	f, err := openLockFile(path)
	if err != nil {
		return nil, err
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return held(f), nil
}

func openLockFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	return f, nil
}

// held records the owner and returns the unlock func of a locked file.
func held(f *os.File) func() error {
	// The PID is informational only.
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)

	released := false
	return func() error {
		if released {
			return nil
		}
		released = true
		unlockErr := unlock(f)
		closeErr := f.Close()
		return errors.Join(unlockErr, closeErr)
	}
}
