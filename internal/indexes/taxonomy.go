package indexes

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitegen/internal/cachestore"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

const taxonomySchemaVersion = 1

// TagEntry records one tag's member pages plus a validity flag. An
// invalid entry means the derived tag-listing page must regenerate even
// though the membership set itself is current.
type TagEntry struct {
	Slug  string
	Pages []string
	Valid bool
}

// ToPrimitives implements cachestore.Cacheable.
func (e TagEntry) ToPrimitives() map[string]any {
	pages := append([]string(nil), e.Pages...)
	sort.Strings(pages)
	return map[string]any{
		"slug":  e.Slug,
		"pages": pages,
		"valid": e.Valid,
	}
}

// DecodeTagEntry is the inverse of ToPrimitives.
func DecodeTagEntry(prim map[string]any) (TagEntry, error) {
	slug, err := cachestore.String(prim, "slug")
	if err != nil {
		return TagEntry{}, err
	}
	pages, err := cachestore.StringSlice(prim, "pages")
	if err != nil {
		return TagEntry{}, err
	}
	sort.Strings(pages)
	return TagEntry{
		Slug:  slug,
		Pages: pages,
		Valid: cachestore.Bool(prim, "valid"),
	}, nil
}

// TaxonomyIndex maps tag slug → member pages.
type TaxonomyIndex struct {
	store   *cachestore.Store[TagEntry]
	entries map[string]TagEntry
}

// NewTaxonomyIndex creates an empty index.
func NewTaxonomyIndex() *TaxonomyIndex {
	return &TaxonomyIndex{
		store:   cachestore.NewStore(taxonomySchemaVersion, DecodeTagEntry),
		entries: make(map[string]TagEntry),
	}
}

// Load replaces the in-memory entries with the file's content.
func (idx *TaxonomyIndex) Load(ctx context.Context, path string) {
	idx.entries = make(map[string]TagEntry)
	for _, e := range idx.store.Load(ctx, path) {
		idx.entries[e.Slug] = e
	}
}

// Save persists all entries, sorted by slug.
func (idx *TaxonomyIndex) Save(ctx context.Context, path string) error {
	items := make([]TagEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		items = append(items, e)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Slug < items[j].Slug })
	return idx.store.Save(ctx, path, items)
}

// Update replaces one tag's membership and marks it valid.
func (idx *TaxonomyIndex) Update(slug string, members sets.Set[string]) {
	idx.entries[slug] = TagEntry{
		Slug:  slug,
		Pages: sets.SortedStrings(members),
		Valid: true,
	}
}

// Invalidate flags a tag so its listing page regenerates next build.
func (idx *TaxonomyIndex) Invalidate(slug string) {
	if e, ok := idx.entries[slug]; ok {
		e.Valid = false
		idx.entries[slug] = e
	}
}

// Remove drops a tag entirely (its last member page disappeared).
func (idx *TaxonomyIndex) Remove(slug string) {
	delete(idx.entries, slug)
}

// Members returns a tag's member set.
func (idx *TaxonomyIndex) Members(slug string) sets.Set[string] {
	return sets.New(idx.entries[slug].Pages...)
}

// Membership returns the full slug → members snapshot.
func (idx *TaxonomyIndex) Membership() map[string]sets.Set[string] {
	out := make(map[string]sets.Set[string], len(idx.entries))
	for slug, e := range idx.entries {
		out[slug] = sets.New(e.Pages...)
	}
	return out
}

// Slugs returns the sorted tag slugs, valid and invalid alike.
func (idx *TaxonomyIndex) Slugs() []string {
	out := make([]string, 0, len(idx.entries))
	for slug := range idx.entries {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// Invalidated returns the slugs currently flagged invalid.
func (idx *TaxonomyIndex) Invalidated() sets.Set[string] {
	out := sets.New[string]()
	for slug, e := range idx.entries {
		if !e.Valid {
			out.Add(slug)
		}
	}
	return out
}

// DiffTags returns exactly the tags whose membership differs between the
// two snapshots: appeared, disappeared, or changed members. Unchanged
// tags are skipped entirely, which is what lets the orchestrator avoid
// regenerating every tag-listing page on every build.
func DiffTags(old, new map[string]sets.Set[string]) sets.Set[string] {
	changed := sets.New[string]()
	for slug, members := range new {
		prev, existed := old[slug]
		if !existed || !prev.Equal(members) {
			changed.Add(slug)
		}
	}
	for slug := range old {
		if _, still := new[slug]; !still {
			changed.Add(slug)
		}
	}
	return changed
}

// stripMarks removes combining marks left over after NFKD decomposition,
// so "Café" and "Cafe" slug identically.
var stripMarks = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Slugify turns a tag term into its canonical slug: unicode-folded,
// lowercased, non-alphanumerics collapsed to single hyphens.
func Slugify(term string) string {
	folded, _, err := transform.String(stripMarks, term)
	if err != nil {
		folded = term
	}
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
