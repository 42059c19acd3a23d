package buildcache

import (
	"fmt"

	"git.home.luguber.info/inful/sitegen/internal/cachestore"
)

// PageSnapshot is the parsed-content cache entry for one page, modeled as
// an explicit two-state variant: unloaded (metadata only, content dropped
// or not yet materialized) or loaded (content present). Materialization
// is an explicit operation, never a hidden first-access side effect.
type PageSnapshot struct {
	Path       string
	SourceHash string

	content string
	loaded  bool
}

// UnloadedSnapshot records that a page at the given source hash was
// parsed, without retaining its content.
func UnloadedSnapshot(path, sourceHash string) PageSnapshot {
	return PageSnapshot{Path: path, SourceHash: sourceHash}
}

// LoadedSnapshot records a page's parsed content alongside its hash.
func LoadedSnapshot(path, sourceHash, content string) PageSnapshot {
	return PageSnapshot{Path: path, SourceHash: sourceHash, content: content, loaded: true}
}

// Loaded reports whether the content is materialized.
func (s PageSnapshot) Loaded() bool { return s.loaded }

// Content returns the parsed content of a loaded snapshot.
func (s PageSnapshot) Content() (string, error) {
	if !s.loaded {
		return "", fmt.Errorf("snapshot for %s is not materialized", s.Path)
	}
	return s.content, nil
}

// Materialize loads content through the supplied loader and returns the
// loaded snapshot. Calling it on an already-loaded snapshot is a no-op.
func (s PageSnapshot) Materialize(load func(path string) (string, error)) (PageSnapshot, error) {
	if s.loaded {
		return s, nil
	}
	content, err := load(s.Path)
	if err != nil {
		return s, fmt.Errorf("materialize %s: %w", s.Path, err)
	}
	return LoadedSnapshot(s.Path, s.SourceHash, content), nil
}

// ToPrimitives implements cachestore.Cacheable.
func (s PageSnapshot) ToPrimitives() map[string]any {
	return map[string]any{
		"path":        s.Path,
		"source_hash": s.SourceHash,
		"content":     s.content,
		"loaded":      s.loaded,
	}
}

// DecodePageSnapshot is the inverse of ToPrimitives.
func DecodePageSnapshot(prim map[string]any) (PageSnapshot, error) {
	path, err := cachestore.String(prim, "path")
	if err != nil {
		return PageSnapshot{}, err
	}
	hash, err := cachestore.String(prim, "source_hash")
	if err != nil {
		return PageSnapshot{}, err
	}
	snap := PageSnapshot{
		Path:       path,
		SourceHash: hash,
		content:    cachestore.OptionalString(prim, "content"),
		loaded:     cachestore.Bool(prim, "loaded"),
	}
	return snap, nil
}
