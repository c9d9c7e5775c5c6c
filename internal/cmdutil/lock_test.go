package cmdutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/run/locks", "torrentbed-transmission-promise-testing.lock"),
		LockPath("/run/locks", "transmission-promise-testing"))
	assert.Equal(t, filepath.Join("/run/locks", "torrentbed-a_b_c.lock"), LockPath("/run/locks", "a/b c"))
	assert.Equal(t, os.TempDir(), filepath.Dir(LockPath("", "x")))
}

func TestAcquireLifecycleLock(t *testing.T) {
	path := LockPath(filepath.Join(t.TempDir(), "nested"), "svc")

	lock, err := AcquireLifecycleLock(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, lock.Path())

	// A second holder waits until the context gives up.
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err = AcquireLifecycleLock(ctx, path)
	require.Error(t, err)

	require.NoError(t, lock.Unlock())

	again, err := AcquireLifecycleLock(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestLifecycleLock_NilUnlock(t *testing.T) {
	var l *LifecycleLock
	assert.NoError(t, l.Unlock())
}
