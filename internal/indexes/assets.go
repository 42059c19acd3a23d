package indexes

import (
	"context"
	"sort"

	"git.home.luguber.info/inful/sitegen/internal/cachestore"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

const assetSchemaVersion = 1

// AssetRefs records the asset paths one page references, as reported back
// by the renderer. The orchestrator uses it to scope asset processing to
// assets referenced by pages actually being rebuilt instead of scanning
// every asset every build.
type AssetRefs struct {
	Page   string
	Assets []string
}

// ToPrimitives implements cachestore.Cacheable.
func (r AssetRefs) ToPrimitives() map[string]any {
	assets := append([]string(nil), r.Assets...)
	sort.Strings(assets)
	return map[string]any{
		"page":   r.Page,
		"assets": assets,
	}
}

// DecodeAssetRefs is the inverse of ToPrimitives.
func DecodeAssetRefs(prim map[string]any) (AssetRefs, error) {
	page, err := cachestore.String(prim, "page")
	if err != nil {
		return AssetRefs{}, err
	}
	assets, err := cachestore.StringSlice(prim, "assets")
	if err != nil {
		return AssetRefs{}, err
	}
	sort.Strings(assets)
	return AssetRefs{Page: page, Assets: assets}, nil
}

// AssetIndex maps page path → referenced asset paths.
type AssetIndex struct {
	store   *cachestore.Store[AssetRefs]
	entries map[string]AssetRefs
}

// NewAssetIndex creates an empty index.
func NewAssetIndex() *AssetIndex {
	return &AssetIndex{
		store:   cachestore.NewStore(assetSchemaVersion, DecodeAssetRefs),
		entries: make(map[string]AssetRefs),
	}
}

// Load replaces the in-memory entries with the file's content.
func (idx *AssetIndex) Load(ctx context.Context, path string) {
	idx.entries = make(map[string]AssetRefs)
	for _, r := range idx.store.Load(ctx, path) {
		idx.entries[r.Page] = r
	}
}

// Save persists all entries, sorted by page path.
func (idx *AssetIndex) Save(ctx context.Context, path string) error {
	items := make([]AssetRefs, 0, len(idx.entries))
	for _, r := range idx.entries {
		items = append(items, r)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Page < items[j].Page })
	return idx.store.Save(ctx, path, items)
}

// Update replaces one page's reported asset references.
func (idx *AssetIndex) Update(page string, assets []string) {
	sorted := append([]string(nil), assets...)
	sort.Strings(sorted)
	idx.entries[page] = AssetRefs{Page: page, Assets: sorted}
}

// Remove drops a deleted page's references.
func (idx *AssetIndex) Remove(page string) {
	delete(idx.entries, page)
}

// AssetsFor returns the union of assets referenced by the given pages.
func (idx *AssetIndex) AssetsFor(pages sets.Set[string]) sets.Set[string] {
	out := sets.New[string]()
	for page := range pages {
		for _, asset := range idx.entries[page].Assets {
			out.Add(asset)
		}
	}
	return out
}

// References returns one page's recorded assets.
func (idx *AssetIndex) References(page string) []string {
	return idx.entries[page].Assets
}

// Len returns the number of pages with recorded references.
func (idx *AssetIndex) Len() int { return len(idx.entries) }
