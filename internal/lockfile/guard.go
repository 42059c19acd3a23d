// Package lockfile provides per-cache-file advisory locking so two build
// processes (a watch-mode daemon and a manual CLI run, typically) cannot
// corrupt the same cache file. Locking is best-effort: on filesystems
// where the lock file cannot be created the guard degrades to unlocked
// operation with a single warning instead of blocking the build.
package lockfile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// Mode selects shared (read) or exclusive (write) locking.
type Mode int

const (
	// Shared allows concurrent readers of the guarded file.
	Shared Mode = iota
	// Exclusive blocks all other holders while the file is written.
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// retryInterval is the poll interval while waiting out contention.
const retryInterval = 50 * time.Millisecond

// Guard holds an acquired (or degraded) lock. Release it when done.
type Guard struct {
	fl       *flock.Flock
	degraded bool
}

// Option tweaks one Acquire call.
type Option func(*options)

type options struct {
	onContention func()
}

// OnContention registers a callback fired once when the lock is already
// held and the caller starts waiting. Metrics hooks go here.
func OnContention(fn func()) Option {
	return func(o *options) { o.onContention = fn }
}

// Acquire locks path's sibling lock file (path + ".lock") in the given
// mode. It attempts a non-blocking acquire first; on contention it logs
// once and blocks up to timeout (timeout <= 0 blocks indefinitely, bounded
// only by process lifetime). If the lock file itself cannot be created,
// the returned guard is degraded: Release is a no-op and the caller
// proceeds unlocked.
func Acquire(ctx context.Context, path string, mode Mode, timeout time.Duration, opts ...Option) (*Guard, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	fl := flock.New(path + ".lock")

	ok, err := tryOnce(fl, mode)
	if err != nil {
		slog.Warn("Lock file unavailable, proceeding without locking",
			"path", path,
			"mode", mode.String(),
			"error", err)
		return &Guard{degraded: true}, nil
	}
	if ok {
		return &Guard{fl: fl}, nil
	}

	slog.Info("Cache file is locked by another process, waiting",
		"path", path,
		"mode", mode.String())
	if o.onContention != nil {
		o.onContention()
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var locked bool
	if mode == Exclusive {
		locked, err = fl.TryLockContext(waitCtx, retryInterval)
	} else {
		locked, err = fl.TryRLockContext(waitCtx, retryInterval)
	}
	if err != nil || !locked {
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("acquire %s lock on %s: %w", mode, path, err)
	}
	return &Guard{fl: fl}, nil
}

// tryOnce attempts a single non-blocking acquire. The error return is only
// non-nil when the lock file itself could not be created or opened, which
// is the degrade-without-locking case.
func tryOnce(fl *flock.Flock, mode Mode) (bool, error) {
	if mode == Exclusive {
		return fl.TryLock()
	}
	return fl.TryRLock()
}

// Release unlocks the lock file. The file itself stays in place, flock
// convention: unlinking it would let a third process lock a fresh inode
// while a waiter still holds the old one. Safe on a degraded guard.
func (g *Guard) Release() {
	if g == nil || g.degraded || g.fl == nil {
		return
	}
	if err := g.fl.Unlock(); err != nil {
		slog.Warn("Failed to release cache lock", "path", g.fl.Path(), "error", err)
	}
}

// Degraded reports whether the guard is operating without a real lock.
func (g *Guard) Degraded() bool {
	return g == nil || g.degraded
}
