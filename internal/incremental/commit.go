package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/buildcache"
	"git.home.luguber.info/inful/sitegen/internal/indexes"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/observability"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// PageResult is what the builder reports back for one successfully built
// page.
type PageResult struct {
	Path         string
	Meta         indexes.PageMeta
	Dependencies []string
	Assets       []string
	Content      string
}

// BuildResult collects the per-page results of one successful build.
type BuildResult struct {
	Pages []PageResult

	// Retracted names planned pages that produced no output this build
	// (drafts, typically). They are scrubbed from every index and from
	// tag membership like deleted pages, but their content hash is still
	// recorded, so they stay dormant until their source changes again.
	Retracted []string
}

// Summary describes what a build applied to the caches.
type Summary struct {
	Outcome     metrics.OutcomeLabel
	TagsChanged sets.Set[string]
}

// Apply folds the build's results into the in-memory caches and returns
// the definitive changed-tag set. Nothing touches disk: callers render
// tag listings from the applied membership between Apply and Persist,
// keeping all rendering ahead of cache persistence.
func (p *Plan) Apply(ctx context.Context, result BuildResult) Summary {
	if p.Noop() {
		p.applied = true
		p.summary = Summary{Outcome: metrics.OutcomeNoop, TagsChanged: sets.New[string]()}
		return p.summary
	}

	for page := range p.Changes.Deleted {
		p.cache.Purge(page)
		p.pageMeta.Remove(page)
		p.assetIdx.Remove(page)
		p.tracker.Remove(page)
	}

	retracted := sets.New(result.Retracted...)
	for page := range retracted {
		p.pageMeta.Remove(page)
		p.assetIdx.Remove(page)
		p.tracker.Remove(page)
		delete(p.cache.Parsed, page)
	}

	built := sets.New[string]()
	for _, r := range result.Pages {
		if r.Path == "" {
			continue
		}
		built.Add(r.Path)
		r.Meta.Path = r.Path
		p.tracker.ReplacePage(r.Path, r.Dependencies)
		p.pageMeta.Update(r.Meta)
		p.assetIdx.Update(r.Path, r.Assets)
		p.cache.Parsed[r.Path] = buildcache.LoadedSnapshot(r.Path, p.currentHashes[r.Path], r.Content)
	}

	gone := built.Clone().Union(p.Changes.Deleted).Union(retracted)
	changedTags := p.updateTaxonomy(result, gone)

	p.cache.FileHashes = p.currentHashes
	p.cache.Dependencies = p.tracker.Edges()
	p.cache.LastBuild = time.Now().UTC()

	outcome := metrics.OutcomeIncremental
	if p.FullRebuild {
		outcome = metrics.OutcomeFull
	}
	observability.InfoContext(observability.WithBuildID(ctx, p.BuildID), "Applied build results",
		slog.String("outcome", string(outcome)),
		slog.Int("pages", built.Len()),
		slog.Int("retracted", retracted.Len()),
		slog.Int("tags_changed", changedTags.Len()))

	p.applied = true
	p.summary = Summary{Outcome: outcome, TagsChanged: changedTags}
	return p.summary
}

// Persist writes every cache file. Call it only after Apply, and only
// once all rendering (listings included) has succeeded: a failed build
// must leave the cache files untouched, and the way to achieve that is
// simply to not persist. The on-disk files individually either hold
// their previous content or the new content, never a torn mix.
func (p *Plan) Persist(ctx context.Context) error {
	if !p.applied {
		return fmt.Errorf("persist before apply")
	}
	if p.Noop() {
		p.orch.recorder.IncBuildOutcome(metrics.OutcomeNoop)
		return nil
	}

	ctx = observability.WithStage(observability.WithBuildID(ctx, p.BuildID), "persist")
	start := time.Now()
	defer func() { p.orch.recorder.ObservePersistDuration(time.Since(start)) }()

	if err := p.persist(ctx); err != nil {
		p.orch.recorder.IncBuildOutcome(metrics.OutcomeFailed)
		return err
	}

	p.orch.recorder.IncBuildOutcome(p.summary.Outcome)
	observability.InfoContext(ctx, "Committed build caches",
		slog.String("outcome", string(p.summary.Outcome)),
		slog.Int("tags_changed", p.summary.TagsChanged.Len()))
	return nil
}

// Commit is Apply followed by Persist, for callers with no rendering to
// interleave.
func (p *Plan) Commit(ctx context.Context, result BuildResult) (Summary, error) {
	sum := p.Apply(ctx, result)
	if err := p.Persist(ctx); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// updateTaxonomy recomputes tag membership from the rebuilt pages and
// reconciles the taxonomy index: regenerated tags become valid, tags
// whose membership changed without a regenerated listing are flagged
// invalid for the next build, emptied tags disappear. gone is every page
// whose previous membership must not carry over: rebuilt, deleted, or
// retracted.
func (p *Plan) updateTaxonomy(result BuildResult, gone sets.Set[string]) sets.Set[string] {
	newMembership := make(map[string]sets.Set[string], len(p.oldMembership))
	for slug, members := range p.oldMembership {
		newMembership[slug] = members.Clone()
	}

	for slug, members := range newMembership {
		for page := range gone {
			members.Delete(page)
		}
		if members.Len() == 0 {
			delete(newMembership, slug)
		}
	}

	for _, r := range result.Pages {
		for _, term := range r.Meta.Tags {
			slug := indexes.Slugify(term)
			if slug == "" {
				continue
			}
			members, ok := newMembership[slug]
			if !ok {
				members = sets.New[string]()
				newMembership[slug] = members
			}
			members.Add(r.Path)
		}
	}

	changed := indexes.DiffTags(p.oldMembership, newMembership)

	for slug := range changed {
		members, still := newMembership[slug]
		if !still {
			p.taxonomy.Remove(slug)
			continue
		}
		p.taxonomy.Update(slug, members)
		if !p.FullRebuild && !p.TagsToRegenerate.Has(slug) {
			// Membership moved under a listing page nobody regenerated
			// this build; flag it so the next build catches up.
			p.taxonomy.Invalidate(slug)
		}
	}

	// Candidates whose membership turned out unchanged still had their
	// listing regenerated, which clears any earlier invalid flag.
	for slug := range p.TagsToRegenerate {
		if members, ok := newMembership[slug]; ok && !changed.Has(slug) {
			p.taxonomy.Update(slug, members)
		}
	}

	p.cache.TagMembership = make(map[string][]string, len(newMembership))
	for slug, members := range newMembership {
		p.cache.TagMembership[slug] = sets.SortedStrings(members)
	}
	return changed
}

func (p *Plan) persist(ctx context.Context) error {
	if err := p.cache.Save(ctx, p.orch.cacheDir); err != nil {
		return fmt.Errorf("persist build cache: %w", err)
	}
	if err := p.pageMeta.Save(ctx, p.orch.indexPath(pageMetaFileName)); err != nil {
		return fmt.Errorf("persist page-metadata index: %w", err)
	}
	if err := p.taxonomy.Save(ctx, p.orch.indexPath(taxonomyFileName)); err != nil {
		return fmt.Errorf("persist taxonomy index: %w", err)
	}
	if err := p.assetIdx.Save(ctx, p.orch.indexPath(assetsFileName)); err != nil {
		return fmt.Errorf("persist asset index: %w", err)
	}
	return nil
}

// Abort records a failed build. No cache file is touched: the next build
// plans against the last successful build's state, so everything the
// failed build attempted is retried.
func (p *Plan) Abort(ctx context.Context, err error) {
	ctx = observability.WithStage(observability.WithBuildID(ctx, p.BuildID), "abort")
	p.orch.recorder.IncBuildOutcome(metrics.OutcomeFailed)
	observability.ErrorContext(ctx, "Build failed, caches left untouched",
		slog.String("error", err.Error()))
}
