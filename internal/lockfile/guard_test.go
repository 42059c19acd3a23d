package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	g, err := Acquire(context.Background(), path, Exclusive, time.Second)
	require.NoError(t, err)
	assert.False(t, g.Degraded())
	g.Release()
}

func TestSharedLocksCoexist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	g1, err := Acquire(context.Background(), path, Shared, time.Second)
	require.NoError(t, err)
	defer g1.Release()

	g2, err := Acquire(context.Background(), path, Shared, time.Second)
	require.NoError(t, err)
	defer g2.Release()
}

func TestExclusiveBlocksUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	g1, err := Acquire(context.Background(), path, Exclusive, time.Second)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		g2, err := Acquire(context.Background(), path, Exclusive, 5*time.Second)
		assert.NoError(t, err)
		g2.Release()
		close(done)
	}()

	// Give the second acquirer time to hit contention, then release.
	time.Sleep(150 * time.Millisecond)
	g1.Release()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquirer never obtained the lock")
	}
}

func TestExclusiveTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	g1, err := Acquire(context.Background(), path, Exclusive, time.Second)
	require.NoError(t, err)
	defer g1.Release()

	_, err = Acquire(context.Background(), path, Exclusive, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestReleaseOnNilGuard(t *testing.T) {
	var g *Guard
	g.Release() // must not panic
	assert.True(t, g.Degraded())
}

func TestReleaseLeavesLockFileInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	g, err := Acquire(context.Background(), path, Exclusive, time.Second)
	require.NoError(t, err)
	g.Release()

	// Unlinking the lock file on release would let a third process lock
	// a fresh inode while a waiter still holds the unlinked one; the
	// file stays put and only the flock is dropped.
	_, statErr := os.Stat(path + ".lock")
	assert.NoError(t, statErr)

	g2, err := Acquire(context.Background(), path, Exclusive, time.Second)
	require.NoError(t, err)
	g2.Release()
}

func TestContentionHookFires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	g1, err := Acquire(context.Background(), path, Exclusive, time.Second)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		g2, err := Acquire(context.Background(), path, Exclusive, 5*time.Second,
			OnContention(func() { fired <- struct{}{} }))
		assert.NoError(t, err)
		g2.Release()
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("contention hook never fired")
	}
	g1.Release()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquirer never obtained the lock")
	}
}

func TestUncontendedAcquireSkipsHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	calls := 0
	g, err := Acquire(context.Background(), path, Exclusive, time.Second,
		OnContention(func() { calls++ }))
	require.NoError(t, err)
	g.Release()
	assert.Zero(t, calls)
}
