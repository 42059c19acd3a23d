package site

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newProject(t *testing.T) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	writeSource(t, root, config.DefaultFileName, "title: Test Site\n")
	cfg, err := config.Load(filepath.Join(root, config.DefaultFileName))
	require.NoError(t, err)
	return root, cfg
}

func TestBuildWritesPagesAssetsAndTagListings(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/posts/hello.md",
		"---\ntitle: Hello\ntags: [Go]\n---\n# Hello\n\n![d](/static/img/d.png)\n")
	writeSource(t, root, "static/img/d.png", "png-bytes")

	b := NewBuilder(root, cfg, false)
	sum, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFull, sum.Outcome)

	page, err := os.ReadFile(filepath.Join(root, "public", "posts", "hello", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "<h1>Hello</h1>")
	assert.Contains(t, string(page), "Hello | Test Site")

	img, err := os.ReadFile(filepath.Join(root, "public", "img", "d.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(img))

	listing, err := os.ReadFile(filepath.Join(root, "public", "tags", "go", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(listing), "posts/hello/index.html")
	assert.Contains(t, string(listing), "Hello")
}

func TestSecondBuildIsNoop(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A\n")

	b := NewBuilder(root, cfg, false)
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNoop, sum.Outcome)
}

func TestEditedPageRebuildsIncrementally(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A v1\n")
	writeSource(t, root, "content/b.md", "# B\n")

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)

	writeSource(t, root, "content/a.md", "# A v2\n")
	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeIncremental, sum.Outcome)

	page, err := os.ReadFile(filepath.Join(root, "public", "a", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "A v2")
}

func TestDeletedPageOutputRemoved(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A\n")
	writeSource(t, root, "content/b.md", "---\ntags: [Solo]\n---\n# B\n")

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	bOut := filepath.Join(root, "public", "b", "index.html")
	require.FileExists(t, bOut)
	soloOut := filepath.Join(root, "public", "tags", "solo", "index.html")
	require.FileExists(t, soloOut)

	require.NoError(t, os.Remove(filepath.Join(root, "content", "b.md")))
	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeIncremental, sum.Outcome)

	assert.NoFileExists(t, bOut)
	assert.NoFileExists(t, soloOut, "emptied tag listing is removed")
}

func TestDraftsSkippedByDefault(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "---\ndraft: true\n---\n# A\n")

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "public", "a", "index.html"))
}

func TestDraftToggleRetractsPublishedPage(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "---\ntitle: A\ntags: [Go]\n---\n# A\n")
	writeSource(t, root, "content/b.md", "---\ntitle: B\ntags: [Go]\n---\n# B\n")

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	aOut := filepath.Join(root, "public", "a", "index.html")
	require.FileExists(t, aOut)
	listing := filepath.Join(root, "public", "tags", "go", "index.html")
	require.FileExists(t, listing)

	// Re-marking a published page as draft retracts it: its output and
	// listing entry go away instead of lingering as stale content.
	writeSource(t, root, "content/a.md", "---\ntitle: A\ntags: [Go]\ndraft: true\n---\n# A\n")
	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeIncremental, sum.Outcome)
	assert.NoFileExists(t, aOut)

	data, err := os.ReadFile(listing)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a/index.html")
	assert.Contains(t, string(data), "b/index.html")

	// The retraction is recorded, not repeated: nothing changed, so the
	// next build is a no-op and the page stays retracted.
	sum, err = NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNoop, sum.Outcome)
	assert.NoFileExists(t, aOut)
}

func TestListingFailureLeavesCachesUncommitted(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "---\ntags: [Go]\n---\n# A\n")

	// A regular file where the tag-listing tree should go makes listing
	// rendering fail after the pages themselves rendered fine.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "public"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "public", "tags"), []byte("x"), 0o644))

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.Error(t, err)

	// No cache file was persisted, so after clearing the obstruction the
	// next build replans the same work instead of claiming a no-op.
	require.NoError(t, os.Remove(filepath.Join(root, "public", "tags")))
	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFull, sum.Outcome)
	assert.FileExists(t, filepath.Join(root, "public", "tags", "go", "index.html"))
}

func TestForceFullRebuildsEverything(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A\n")

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)

	sum, err := NewBuilder(root, cfg, true).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFull, sum.Outcome)
}

func TestConfigChangeDiscardsCache(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A\n")

	_, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)

	changed := *cfg
	changed.BaseURL = "https://example.org"
	sum, err := NewBuilder(root, &changed, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFull, sum.Outcome)
}

func TestCleanRemovesOutputButKeepsCache(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A\n")

	b := NewBuilder(root, cfg, false)
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Clean())
	assert.NoDirExists(t, b.OutputDir())
	assert.DirExists(t, b.CacheDir())

	// The caches still claim a warm state, so a plain rebuild is a noop;
	// regenerating after clean is what --force is for.
	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeNoop, sum.Outcome)
}

func TestPurgeCacheForcesColdBuild(t *testing.T) {
	root, cfg := newProject(t)
	writeSource(t, root, "content/a.md", "# A\n")

	b := NewBuilder(root, cfg, false)
	_, err := b.Build(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.PurgeCache())
	sum, err := NewBuilder(root, cfg, false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeFull, sum.Outcome)
}

func TestOutputPathMapping(t *testing.T) {
	assert.Equal(t, "posts/a/index.html", pageOutputPath("content/posts/a.md"))
	assert.Equal(t, "index.html", pageOutputPath("content/index.md"))
	assert.Equal(t, "posts/index.html", pageOutputPath("content/posts/index.md"))
	assert.Equal(t, "css/site.css", assetOutputPath("static/css/site.css"))
	assert.Equal(t, "posts/d.png", assetOutputPath("content/posts/d.png"))
}
