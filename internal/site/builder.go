// Package site runs complete builds: scan the source tree, plan the
// minimal rebuild, render what the plan names, write outputs, and commit
// the caches. One exclusive lock covers the whole build so concurrent
// invocations against the same project serialize instead of corrupting
// each other's caches.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/atomicio"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/discovery"
	"git.home.luguber.info/inful/sitegen/internal/incremental"
	"git.home.luguber.info/inful/sitegen/internal/lockfile"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/observability"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// buildLockTimeout bounds how long a build waits for a competing build
// to finish before giving up.
const buildLockTimeout = 2 * time.Minute

// Builder orchestrates full and incremental builds for one project.
type Builder struct {
	root     string
	cfg      *config.Config
	orch     *incremental.Orchestrator
	renderer *render.Renderer
	recorder metrics.Recorder
}

// Option configures a Builder.
type Option func(*Builder)

// WithRecorder injects a metrics recorder shared with the orchestrator.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// NewBuilder creates a builder for the project at root. forceFull
// discards warm cache state and rebuilds everything.
func NewBuilder(root string, cfg *config.Config, forceFull bool, opts ...Option) *Builder {
	b := &Builder{
		root:     root,
		cfg:      cfg,
		renderer: render.New(cfg),
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.orch = incremental.NewOrchestrator(
		b.CacheDir(),
		cfg.Fingerprint(),
		incremental.WithRecorder(b.recorder),
		incremental.WithHashWorkers(cfg.HashWorkers),
		incremental.WithForceFull(forceFull),
	)
	return b
}

// CacheDir returns the project's cache directory.
func (b *Builder) CacheDir() string {
	return filepath.Join(b.root, incremental.CacheDirName)
}

// OutputDir returns the project's generated-output directory.
func (b *Builder) OutputDir() string {
	return filepath.Join(b.root, b.cfg.OutputDir)
}

// Build runs one complete build and returns what was committed.
func (b *Builder) Build(ctx context.Context) (incremental.Summary, error) {
	if err := os.MkdirAll(b.CacheDir(), 0o755); err != nil {
		return incremental.Summary{}, fmt.Errorf("create cache dir: %w", err)
	}
	guard, err := lockfile.Acquire(ctx,
		filepath.Join(b.CacheDir(), "build"), lockfile.Exclusive, buildLockTimeout,
		lockfile.OnContention(func() { b.recorder.IncLockContention("build") }))
	if err != nil {
		return incremental.Summary{}, fmt.Errorf("acquire build lock: %w", err)
	}
	defer guard.Release()

	files, err := discovery.NewScanner(b.root).Scan()
	if err != nil {
		return incremental.Summary{}, err
	}

	plan, err := b.orch.Plan(ctx, files)
	if err != nil {
		return incremental.Summary{}, err
	}
	if plan.Noop() {
		return plan.Commit(ctx, incremental.BuildResult{})
	}

	result, err := b.execute(ctx, plan, files)
	if err != nil {
		plan.Abort(ctx, err)
		return incremental.Summary{}, err
	}

	summary := plan.Apply(ctx, result)

	// Listing pages render from the applied membership. All rendering,
	// listings included, must finish before any cache file is written:
	// a listing failure aborts with the caches still on their previous
	// state, so the next build replans and retries everything.
	tags := plan.TagsToRegenerate.Clone().Union(summary.TagsChanged)
	if err := b.writeTagListings(ctx, plan, tags); err != nil {
		plan.Abort(ctx, err)
		return incremental.Summary{}, err
	}

	if err := plan.Persist(ctx); err != nil {
		return incremental.Summary{}, err
	}
	return summary, nil
}

// execute renders planned pages, copies planned assets, and removes
// outputs of deleted sources. Any page failure aborts the whole build.
func (b *Builder) execute(ctx context.Context, plan *incremental.Plan, files []discovery.File) (incremental.BuildResult, error) {
	ctx = observability.WithStage(observability.WithBuildID(ctx, plan.BuildID), "build")
	byPath := make(map[string]discovery.File, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}

	var result incremental.BuildResult
	for _, page := range sets.SortedStrings(plan.PagesToBuild) {
		f, ok := byPath[page]
		if !ok {
			return result, fmt.Errorf("planned page %s not in source tree", page)
		}
		res, err := b.renderer.RenderPage(f, plan.Reporter())
		if errors.Is(err, render.ErrDraft) {
			// A page that was published before can have been re-marked as
			// draft; its old output and index entries must go away, not
			// linger. Retraction handles the index side at apply time.
			observability.DebugContext(observability.WithPage(ctx, page), "Retracting draft")
			result.Retracted = append(result.Retracted, page)
			b.removeOutput(ctx, page)
			continue
		}
		if err != nil {
			return result, err
		}
		out := filepath.Join(b.OutputDir(), filepath.FromSlash(pageOutputPath(page)))
		if err := atomicio.WriteFile(out, []byte(b.pageShell(res.Meta.Title, res.Content)), 0o644); err != nil {
			return result, fmt.Errorf("write %s: %w", page, err)
		}
		result.Pages = append(result.Pages, res)
	}

	for _, asset := range sets.SortedStrings(plan.AssetsToProcess) {
		f, ok := byPath[asset]
		if !ok {
			continue
		}
		out := filepath.Join(b.OutputDir(), filepath.FromSlash(assetOutputPath(asset)))
		if err := atomicio.WriteFile(out, f.Data, 0o644); err != nil {
			return result, fmt.Errorf("copy asset %s: %w", asset, err)
		}
	}

	for _, gone := range sets.SortedStrings(plan.OutputsToRemove) {
		b.removeOutput(ctx, gone)
	}
	return result, nil
}

// pageShell wraps rendered page content in the minimal HTML document the
// reference renderer emits. Template execution with real layouts is the
// job of a full theme engine; the cache layer only needs deterministic
// output per input.
func (b *Builder) pageShell(title, content string) string {
	return fmt.Sprintf(
		"<!DOCTYPE html>\n<html>\n<head><title>%s | %s</title></head>\n<body>\n%s</body>\n</html>\n",
		title, b.cfg.Title, content)
}

func (b *Builder) writeTagListings(ctx context.Context, plan *incremental.Plan, tags sets.Set[string]) error {
	for _, slug := range sets.SortedStrings(tags) {
		members := plan.TagMembers(slug)
		out := filepath.Join(b.OutputDir(), "tags", slug, "index.html")
		if len(members) == 0 {
			if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove tag listing %s: %w", slug, err)
			}
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "<h1>%s</h1>\n<ul>\n", slug)
		for _, page := range members {
			fmt.Fprintf(&sb, "<li><a href=\"/%s\">%s</a></li>\n",
				pageOutputPath(page), plan.PageTitle(page))
		}
		sb.WriteString("</ul>\n")

		if err := atomicio.WriteFile(out, []byte(b.pageShell(slug, sb.String())), 0o644); err != nil {
			return fmt.Errorf("write tag listing %s: %w", slug, err)
		}
	}
	return nil
}

// removeOutput deletes the generated file of a removed source. Best
// effort: a missing output is already the desired state.
func (b *Builder) removeOutput(ctx context.Context, source string) {
	var rel string
	switch {
	case strings.HasPrefix(source, "content/") && isMarkup(source):
		rel = pageOutputPath(source)
	case strings.HasPrefix(source, "content/") || strings.HasPrefix(source, "static/"):
		rel = assetOutputPath(source)
	default:
		return
	}
	out := filepath.Join(b.OutputDir(), filepath.FromSlash(rel))
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		observability.WarnContext(ctx, "Could not remove stale output",
			slog.String("output", out), slog.String("error", err.Error()))
	}
}

func isMarkup(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".md" || ext == ".markdown"
}

// pageOutputPath maps a page source to its output file:
// content/posts/a.md becomes posts/a/index.html.
func pageOutputPath(page string) string {
	rel := strings.TrimPrefix(page, "content/")
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	if rel == "index" || strings.HasSuffix(rel, "/index") {
		rel = strings.TrimSuffix(rel, "index")
		return path.Join(rel, "index.html")
	}
	return path.Join(rel, "index.html")
}

// assetOutputPath maps an asset source to its output location: static/
// content is served from the site root, page-bundle assets stay next to
// their page.
func assetOutputPath(asset string) string {
	if strings.HasPrefix(asset, "static/") {
		return strings.TrimPrefix(asset, "static/")
	}
	return strings.TrimPrefix(asset, "content/")
}

// Clean removes the generated-output directory. Cache state is
// untouched; cleaning output and purging caches are deliberately
// separate operations.
func (b *Builder) Clean() error {
	if err := os.RemoveAll(b.OutputDir()); err != nil {
		return fmt.Errorf("clean output: %w", err)
	}
	return nil
}

// PurgeCache removes the cache directory, forcing the next build to run
// cold.
func (b *Builder) PurgeCache() error {
	if err := os.RemoveAll(b.CacheDir()); err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}
