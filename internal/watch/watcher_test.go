package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldIgnore(t *testing.T) {
	w := New("/project", []string{"public"}, nil)

	cases := []struct {
		path   string
		ignore bool
	}{
		{"/project/content/a.md", false},
		{"/project/layouts/base.tmpl", false},
		{"/project/.sitegen-cache/build-cache.json", true},
		{"/project/.sitegen-cache/indexes/taxonomy.json", true},
		{"/project/content/.obsidian/workspace.json", true},
		{"/project/content/.a.md.swp", true},
		{"/project/content/a.md~", true},
		{"/project/content/#a.md#", true},
		{"/project/public/index.html", true},
		{"/project/Thumbs.db", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ignore, w.shouldIgnore(filepath.FromSlash(tc.path)), tc.path)
	}
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	w := New(t.TempDir(), nil, nil)
	w.debounce = 20 * time.Millisecond

	requests := make(chan struct{}, 1)
	trigger := w.debouncer(requests)

	for range 10 {
		trigger()
	}

	select {
	case <-requests:
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}

	select {
	case <-requests:
		t.Fatal("burst produced more than one request")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherTriggersBuildOnChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "content"), 0o755))

	var builds atomic.Int32
	w := New(root, nil, func(context.Context) error {
		builds.Add(1)
		return nil
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to register directories.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "content", "a.md"), []byte("# A"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for builds.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Positive(t, builds.Load(), "expected at least one build after a change")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}

func TestWatcherIgnoredDirDoesNotTrigger(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "public"), 0o755))

	var builds atomic.Int32
	w := New(root, []string{"public"}, func(context.Context) error {
		builds.Add(1)
		return nil
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "public", "index.html"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, builds.Load(), "output-dir writes must not trigger rebuilds")
}
