// Package buildcache holds the root cache aggregate for one project: the
// file hash map, the dependency graph, the parsed-content snapshots, and
// the tag-membership snapshot, under a single schema version and a single
// build-context fingerprint. The aggregate persists as one atomic file;
// only cross-file consistency with the sibling index files is the
// documented gap, never consistency within this file.
package buildcache

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/cachestore"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// SchemaVersion gates the root cache file. Bump on any incompatible
// change to the aggregate's primitive form.
const SchemaVersion = 2

// FileName is the root cache file inside the cache directory. The cache
// directory is colocated with the project root, never inside the
// generated-output directory, so cleaning output can never destroy it.
const FileName = "build-cache.json"

// BuildCache is the root aggregate. It is owned and mutated only by the
// orchestrator, only after a build phase completes; worker tasks receive
// read-only snapshots and return results instead of touching it.
type BuildCache struct {
	Fingerprint   string
	FileHashes    map[string]string
	Dependencies  map[string][]string
	Parsed        map[string]PageSnapshot
	TagMembership map[string][]string
	LastBuild     time.Time
}

// New creates an empty cache bound to the current build-context
// fingerprint.
func New(fingerprint string) *BuildCache {
	return &BuildCache{
		Fingerprint:   fingerprint,
		FileHashes:    make(map[string]string),
		Dependencies:  make(map[string][]string),
		Parsed:        make(map[string]PageSnapshot),
		TagMembership: make(map[string][]string),
	}
}

// Warm reports whether the cache carries state from a previous build. A
// cold cache forces a full rebuild.
func (c *BuildCache) Warm() bool {
	return !c.LastBuild.IsZero()
}

// TagMembershipSets returns the tag snapshot as sets for diffing.
func (c *BuildCache) TagMembershipSets() map[string]sets.Set[string] {
	out := make(map[string]sets.Set[string], len(c.TagMembership))
	for slug, pages := range c.TagMembership {
		out[slug] = sets.New(pages...)
	}
	return out
}

// Purge removes every trace of a deleted page from the aggregate.
func (c *BuildCache) Purge(page string) {
	delete(c.FileHashes, page)
	delete(c.Dependencies, page)
	delete(c.Parsed, page)
	for slug, pages := range c.TagMembership {
		kept := pages[:0]
		for _, p := range pages {
			if p != page {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(c.TagMembership, slug)
		} else {
			c.TagMembership[slug] = kept
		}
	}
}

// ToPrimitives implements cachestore.Cacheable. All set-like values are
// emitted sorted.
func (c *BuildCache) ToPrimitives() map[string]any {
	deps := make(map[string]any, len(c.Dependencies))
	for page, ds := range c.Dependencies {
		sorted := append([]string(nil), ds...)
		sort.Strings(sorted)
		deps[page] = sorted
	}

	tags := make(map[string]any, len(c.TagMembership))
	for slug, pages := range c.TagMembership {
		sorted := append([]string(nil), pages...)
		sort.Strings(sorted)
		tags[slug] = sorted
	}

	parsed := make([]map[string]any, 0, len(c.Parsed))
	paths := make([]string, 0, len(c.Parsed))
	for path := range c.Parsed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		parsed = append(parsed, c.Parsed[path].ToPrimitives())
	}

	hashes := make(map[string]any, len(c.FileHashes))
	for path, hash := range c.FileHashes {
		hashes[path] = hash
	}

	return map[string]any{
		"build_context_fingerprint": c.Fingerprint,
		"file_hashes":               hashes,
		"dependencies":              deps,
		"parsed_content":            parsed,
		"tag_membership":            tags,
		"last_build_timestamp":      cachestore.FormatTime(c.LastBuild),
	}
}

// decode is the inverse of ToPrimitives.
func decode(prim map[string]any) (*BuildCache, error) {
	fingerprint, err := cachestore.String(prim, "build_context_fingerprint")
	if err != nil {
		return nil, err
	}
	hashes, err := cachestore.StringMap(prim, "file_hashes")
	if err != nil {
		return nil, err
	}
	deps, err := cachestore.StringsMap(prim, "dependencies")
	if err != nil {
		return nil, err
	}
	tags, err := cachestore.StringsMap(prim, "tag_membership")
	if err != nil {
		return nil, err
	}
	lastBuild, err := cachestore.Time(prim, "last_build_timestamp")
	if err != nil {
		return nil, err
	}

	c := New(fingerprint)
	c.FileHashes = hashes
	c.Dependencies = deps
	c.TagMembership = tags
	c.LastBuild = lastBuild

	snaps, err := cachestore.MapSlice(prim, "parsed_content")
	if err != nil {
		return nil, err
	}
	for _, sp := range snaps {
		snap, err := DecodePageSnapshot(sp)
		if err != nil {
			// One broken snapshot does not poison the aggregate; the
			// page simply re-parses next build.
			slog.Warn("Dropping malformed parsed-content snapshot", "error", err)
			continue
		}
		c.Parsed[snap.Path] = snap
	}
	return c, nil
}

func store() *cachestore.Store[*BuildCache] {
	return cachestore.NewStore(SchemaVersion, decode)
}

// Load reads the root cache from cacheDir. Any failure short of a valid
// file at the current schema version yields an empty cache. A recorded
// fingerprint differing from the current one also discards the entire
// cache: flag-dependent output cannot be trusted against a stale
// fingerprint.
func Load(ctx context.Context, cacheDir, fingerprint string) *BuildCache {
	path := cachePath(cacheDir)
	migrateLegacy(cacheDir)

	items := store().Load(ctx, path)
	if len(items) == 0 {
		return New(fingerprint)
	}
	c := items[0]
	if c.Fingerprint != fingerprint {
		slog.Warn("Build-context fingerprint changed, discarding build cache",
			"recorded", c.Fingerprint,
			"current", fingerprint)
		return New(fingerprint)
	}
	return c
}

// Save persists the aggregate as one atomic file.
func (c *BuildCache) Save(ctx context.Context, cacheDir string) error {
	return store().Save(ctx, cachePath(cacheDir), []*BuildCache{c})
}
