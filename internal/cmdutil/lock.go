package cmdutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long a command waits for another process
// to finish its lifecycle operation.
const DefaultLockTimeout = 2 * time.Minute

const lockRetryDelay = 100 * time.Millisecond

var unsafeLockChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// LockPath returns the lock file guarding lifecycle operations on the named
// container. An empty dir selects the system temp directory.
func LockPath(dir, name string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "torrentbed-"+unsafeLockChars.ReplaceAllString(name, "_")+".lock")
}

// LifecycleLock serialises up/down/add across processes for one container.
type LifecycleLock struct {
	fl *flock.Flock
}

// AcquireLifecycleLock blocks until the lock at path is held or ctx ends.
func AcquireLifecycleLock(ctx context.Context, path string) (*LifecycleLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquiring lifecycle lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("timed out acquiring lifecycle lock %s", path)
	}
	return &LifecycleLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *LifecycleLock) Path() string { return l.fl.Path() }

// Unlock releases the lock. Safe on a nil lock.
func (l *LifecycleLock) Unlock() error {
	if l == nil {
		return nil
	}
	return l.fl.Unlock()
}
