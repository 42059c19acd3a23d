package indexes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

func TestAssetRefsRoundTrip(t *testing.T) {
	r := AssetRefs{Page: "a.md", Assets: []string{"img/one.png", "img/two.svg"}}
	got, err := DecodeAssetRefs(r.ToPrimitives())
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestAssetIndexAssetsFor(t *testing.T) {
	idx := NewAssetIndex()
	idx.Update("a.md", []string{"img/shared.png", "img/a.png"})
	idx.Update("b.md", []string{"img/shared.png", "img/b.png"})
	idx.Update("c.md", []string{"img/c.png"})

	got := idx.AssetsFor(sets.New("a.md", "b.md"))
	assert.True(t, got.Has("img/shared.png"))
	assert.True(t, got.Has("img/a.png"))
	assert.True(t, got.Has("img/b.png"))
	assert.False(t, got.Has("img/c.png"))
}

func TestAssetIndexAssetsForUnknownPage(t *testing.T) {
	idx := NewAssetIndex()
	assert.Equal(t, 0, idx.AssetsFor(sets.New("nope.md")).Len())
}

func TestAssetIndexPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.json")
	ctx := context.Background()

	idx := NewAssetIndex()
	idx.Update("a.md", []string{"img/z.png", "img/a.png"})
	require.NoError(t, idx.Save(ctx, path))

	restored := NewAssetIndex()
	restored.Load(ctx, path)
	require.Equal(t, 1, restored.Len())
	// Persisted sorted regardless of reported order.
	assert.Equal(t, []string{"img/a.png", "img/z.png"}, restored.References("a.md"))
}

func TestAssetIndexRemove(t *testing.T) {
	idx := NewAssetIndex()
	idx.Update("gone.md", []string{"img/x.png"})
	idx.Remove("gone.md")
	assert.Equal(t, 0, idx.Len())
}
