// Package lockfile guards against two daemon processes opening the same
// database concurrently.
package lockfile

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Guard holds an exclusive, non-blocking lock on a file for the lifetime of
// the process.
type Guard struct {
	flock *flock.Flock
}

// Acquire tries to take an exclusive lock on path, creating it if absent.
// It does not block: a second process racing for the same path gets
// ErrLocked immediately so the caller can exit with the bind/resource error
// class rather than hang.
func Acquire(path string) (*Guard, error) {
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	return &Guard{flock: fl}, nil
}

// Release drops the lock.
func (g *Guard) Release() error {
	return g.flock.Unlock()
}

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = fmt.Errorf("another process already holds the lock")
