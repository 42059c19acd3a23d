package incremental

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitegen/internal/buildcache"
	"git.home.luguber.info/inful/sitegen/internal/depgraph"
	"git.home.luguber.info/inful/sitegen/internal/discovery"
	"git.home.luguber.info/inful/sitegen/internal/hashing"
	"git.home.luguber.info/inful/sitegen/internal/indexes"
	"git.home.luguber.info/inful/sitegen/internal/observability"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Rebuild reasons carried on a Plan.
const (
	ReasonColdCache   = "cold-cache"
	ReasonForced      = "forced"
	ReasonIncremental = "incremental"
	ReasonNoop        = "no-op"
)

// Plan is the minimal work set for one build. The caller builds exactly
// what the plan names, then on success folds the results in with Apply
// and writes the caches with Persist (or Commit for both), or calls
// Abort on failure.
type Plan struct {
	BuildID     string
	FullRebuild bool
	Reason      string

	Changes          hashing.ChangeSet
	PagesToBuild     sets.Set[string]
	AssetsToProcess  sets.Set[string]
	TagsToRegenerate sets.Set[string]
	OutputsToRemove  sets.Set[string]

	// State carried from planning through Apply and Persist.
	orch          *Orchestrator
	currentHashes map[string]string
	pageSet       sets.Set[string]
	cache         *buildcache.BuildCache
	oldMembership map[string]sets.Set[string]
	tracker       *depgraph.Tracker
	pageMeta      *indexes.PageMetaIndex
	taxonomy      *indexes.TaxonomyIndex
	assetIdx      *indexes.AssetIndex
	applied       bool
	summary       Summary
}

// Noop reports whether nothing needs building and nothing will be
// persisted.
func (p *Plan) Noop() bool { return p.Reason == ReasonNoop }

// DependencyReporter is what the page builder reports structural
// dependencies through while rendering. The plan's tracker satisfies it.
type DependencyReporter interface {
	Record(page, dependency string)
}

// Reporter returns the reporter build workers record dependencies on.
// Safe for concurrent use.
func (p *Plan) Reporter() DependencyReporter { return p.tracker }

// TagMembers returns a tag's member pages, sorted. After Apply it
// reflects the applied membership, which is what tag-listing
// generation renders from.
func (p *Plan) TagMembers(slug string) []string {
	return sets.SortedStrings(p.taxonomy.Members(slug))
}

// PageTitle returns a page's committed title for listing generation.
func (p *Plan) PageTitle(page string) string {
	if meta, ok := p.pageMeta.Get(page); ok && meta.Title != "" {
		return meta.Title
	}
	return page
}

// Plan computes the rebuild plan for the given source tree. It loads
// every persisted cache, hashes the current files, and partitions the
// work: a cold or discarded cache plans a full rebuild, otherwise the
// changed files propagate through the dependency graph.
func (o *Orchestrator) Plan(ctx context.Context, files []discovery.File) (*Plan, error) {
	buildID := uuid.NewString()
	ctx = observability.WithStage(observability.WithBuildID(ctx, buildID), "plan")
	start := time.Now()
	defer func() { o.recorder.ObservePlanDuration(time.Since(start)) }()
	o.recorder.SetHashWorkers(o.workers)

	cache := buildcache.Load(ctx, o.cacheDir, o.fingerprint)
	o.recorder.IncCacheLoad("build-cache", cache.Warm())

	pageMeta := indexes.NewPageMetaIndex()
	pageMeta.Load(ctx, o.indexPath(pageMetaFileName))
	o.recorder.IncCacheLoad("page-meta", pageMeta.Len() > 0)

	taxonomy := indexes.NewTaxonomyIndex()
	taxonomy.Load(ctx, o.indexPath(taxonomyFileName))
	o.recorder.IncCacheLoad("taxonomy", len(taxonomy.Slugs()) > 0)

	assetIdx := indexes.NewAssetIndex()
	assetIdx.Load(ctx, o.indexPath(assetsFileName))
	o.recorder.IncCacheLoad("assets", assetIdx.Len() > 0)

	current, err := o.hasher.HashAll(ctx, discovery.Sources(files))
	if err != nil {
		return nil, fmt.Errorf("hash source tree: %w", err)
	}

	pageSet := sets.New[string]()
	assetSet := sets.New[string]()
	for _, f := range files {
		switch f.Kind {
		case discovery.KindPage:
			pageSet.Add(f.Path)
		case discovery.KindAsset:
			assetSet.Add(f.Path)
		}
	}

	p := &Plan{
		BuildID:          buildID,
		Changes:          hashing.NewChangeSet(),
		PagesToBuild:     sets.New[string](),
		AssetsToProcess:  sets.New[string](),
		TagsToRegenerate: sets.New[string](),
		OutputsToRemove:  sets.New[string](),
		orch:             o,
		currentHashes:    current,
		pageSet:          pageSet,
		cache:            cache,
		oldMembership:    cache.TagMembershipSets(),
		tracker:          depgraph.FromEdges(cache.Dependencies),
		pageMeta:         pageMeta,
		taxonomy:         taxonomy,
		assetIdx:         assetIdx,
	}

	if o.forceFull || !cache.Warm() {
		p.FullRebuild = true
		p.Reason = ReasonColdCache
		if o.forceFull {
			p.Reason = ReasonForced
		}
		p.PagesToBuild = pageSet.Clone()
		p.AssetsToProcess = assetSet.Clone()
		observability.InfoContext(ctx, "Planned full rebuild",
			slog.String("reason", p.Reason),
			slog.Int("pages", p.PagesToBuild.Len()),
			slog.Int("assets", p.AssetsToProcess.Len()))
		o.recorder.ObserveRebuildSize(p.PagesToBuild.Len(), p.AssetsToProcess.Len(), 0)
		return p, nil
	}

	changes := hashing.Diff(current, cache.FileHashes)
	changes.DetectRenames(current, cache.FileHashes)
	for from, to := range changes.Renames {
		// Logging only; a rename still plans as delete+add.
		observability.InfoContext(ctx, "Detected probable rename",
			slog.String("from", from), slog.String("to", to))
	}
	p.Changes = changes

	invalidated := taxonomy.Invalidated()
	if changes.Empty() && invalidated.Len() == 0 {
		p.Reason = ReasonNoop
		observability.InfoContext(ctx, "Source tree unchanged, nothing to build")
		return p, nil
	}
	p.Reason = ReasonIncremental

	// Deleted files propagate like changed ones: a page whose template
	// disappeared must rebuild (and surface the breakage) rather than
	// silently keep stale output.
	seeds := changes.Touched().Union(changes.Deleted)
	affected := p.tracker.AffectedBy(seeds)

	for path := range changes.Touched() {
		if pageSet.Has(path) {
			p.PagesToBuild.Add(path)
		}
	}
	for path := range affected {
		if pageSet.Has(path) {
			p.PagesToBuild.Add(path)
		}
	}

	p.OutputsToRemove = changes.Deleted.Clone()

	for path := range changes.Touched() {
		if assetSet.Has(path) {
			p.AssetsToProcess.Add(path)
		}
	}
	for asset := range assetIdx.AssetsFor(p.PagesToBuild) {
		if assetSet.Has(asset) {
			p.AssetsToProcess.Add(asset)
		}
	}

	// Candidate tags: everything that might change membership this build,
	// plus tags flagged invalid by a previous build. The definitive
	// changed-tag set is known only at apply time, once the rebuilt
	// pages report their new tags.
	p.TagsToRegenerate = invalidated
	for page := range p.PagesToBuild.Clone().Union(changes.Deleted) {
		if meta, ok := pageMeta.Get(page); ok {
			for _, term := range meta.Tags {
				p.TagsToRegenerate.Add(indexes.Slugify(term))
			}
		}
	}

	observability.InfoContext(ctx, "Planned incremental rebuild",
		slog.Int("pages", p.PagesToBuild.Len()),
		slog.Int("assets", p.AssetsToProcess.Len()),
		slog.Int("tags", p.TagsToRegenerate.Len()),
		slog.Int("deleted", changes.Deleted.Len()))
	o.recorder.ObserveRebuildSize(p.PagesToBuild.Len(), p.AssetsToProcess.Len(), p.TagsToRegenerate.Len())
	return p, nil
}
