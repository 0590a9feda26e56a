package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LockPrefix marks lock files in the profile root.
const LockPrefix = ".lock-"

// ActiveLockName guards active pointer transitions.
const ActiveLockName = "activeProfile"

// StaleLockAge is how old a lock file must be before the sweeper considers
// its owner dead.
const StaleLockAge = 10 * time.Minute

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("profile: locked")

// Lock is a held filesystem lock. Release removes the lock file.
type Lock struct {
	path string
}

// Release removes the lock file. Safe to call twice.
func (l *Lock) Release() {
	if l == nil || l.path == "" {
		return
	}
	_ = os.Remove(l.path)
	l.path = ""
}

// AcquireLock takes the named lock in the profile root via exclusive create.
// Lock names are the active pointer guard or a profile id.
func (s *Store) AcquireLock(name string) (*Lock, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create profile root: %w", err)
	}

	path := filepath.Join(s.root, LockPrefix+name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, name)
		}
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	fmt.Fprintf(f, "pid=%d\ntime=%d\n", os.Getpid(), time.Now().UnixMilli())
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &Lock{path: path}, nil
}

// SweepStaleLocks removes lock files older than StaleLockAge. Called once at
// startup and periodically by the janitor, so a crash mid-operation cannot
// wedge the root forever.
func (s *Store) SweepStaleLocks() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-StaleLockAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), LockPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
