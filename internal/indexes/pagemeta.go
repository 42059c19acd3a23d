// Package indexes holds the independently persisted, independently
// versioned caches built on the cachestore contract: page metadata,
// taxonomy membership, and asset references. Each is one file on disk and
// one incremental-update surface; only entries touched by a build are
// rewritten in memory, unaffected entries carry over untouched.
package indexes

import (
	"context"
	"sort"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/cachestore"
)

// pageMetaSchemaVersion gates the page-metadata index file. Bump on any
// incompatible change to PageMeta's primitive form.
const pageMetaSchemaVersion = 1

// PageMeta is the lightweight per-page record kept so unchanged pages
// never need re-parsing. It is captured after cascaded/inherited metadata
// has been resolved, so an entry restored from the index is
// indistinguishable from one produced by a fresh parse.
type PageMeta struct {
	Path    string
	Title   string
	Date    time.Time
	Lastmod time.Time
	Kind    string
	Section string
	Tags    []string
	Draft   bool
}

// ToPrimitives implements cachestore.Cacheable.
func (m PageMeta) ToPrimitives() map[string]any {
	tags := append([]string(nil), m.Tags...)
	sort.Strings(tags)
	return map[string]any{
		"path":    m.Path,
		"title":   m.Title,
		"date":    cachestore.FormatTime(m.Date),
		"lastmod": cachestore.FormatTime(m.Lastmod),
		"kind":    m.Kind,
		"section": m.Section,
		"tags":    tags,
		"draft":   m.Draft,
	}
}

// DecodePageMeta is the inverse of ToPrimitives.
func DecodePageMeta(prim map[string]any) (PageMeta, error) {
	path, err := cachestore.String(prim, "path")
	if err != nil {
		return PageMeta{}, err
	}
	date, err := cachestore.Time(prim, "date")
	if err != nil {
		return PageMeta{}, err
	}
	lastmod, err := cachestore.Time(prim, "lastmod")
	if err != nil {
		return PageMeta{}, err
	}
	tags, err := cachestore.StringSlice(prim, "tags")
	if err != nil {
		return PageMeta{}, err
	}
	sort.Strings(tags)
	return PageMeta{
		Path:    path,
		Title:   cachestore.OptionalString(prim, "title"),
		Date:    date,
		Lastmod: lastmod,
		Kind:    cachestore.OptionalString(prim, "kind"),
		Section: cachestore.OptionalString(prim, "section"),
		Tags:    tags,
		Draft:   cachestore.Bool(prim, "draft"),
	}, nil
}

// PageMetaIndex maps page path → resolved metadata.
type PageMetaIndex struct {
	store   *cachestore.Store[PageMeta]
	entries map[string]PageMeta
}

// NewPageMetaIndex creates an empty index.
func NewPageMetaIndex() *PageMetaIndex {
	return &PageMetaIndex{
		store:   cachestore.NewStore(pageMetaSchemaVersion, DecodePageMeta),
		entries: make(map[string]PageMeta),
	}
}

// Load replaces the in-memory entries with the file's content. Missing or
// unusable files leave the index empty.
func (idx *PageMetaIndex) Load(ctx context.Context, path string) {
	idx.entries = make(map[string]PageMeta)
	for _, m := range idx.store.Load(ctx, path) {
		idx.entries[m.Path] = m
	}
}

// Save persists all entries, sorted by page path.
func (idx *PageMetaIndex) Save(ctx context.Context, path string) error {
	items := make([]PageMeta, 0, len(idx.entries))
	for _, m := range idx.entries {
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return idx.store.Save(ctx, path, items)
}

// Update overwrites one page's entry; every other entry is untouched.
func (idx *PageMetaIndex) Update(m PageMeta) {
	idx.entries[m.Path] = m
}

// Remove drops a page's entry, used when its source is deleted.
func (idx *PageMetaIndex) Remove(path string) {
	delete(idx.entries, path)
}

// Get returns a page's cached metadata.
func (idx *PageMetaIndex) Get(path string) (PageMeta, bool) {
	m, ok := idx.entries[path]
	return m, ok
}

// Len returns the number of indexed pages.
func (idx *PageMetaIndex) Len() int { return len(idx.entries) }
