// Package render is the reference page renderer: goldmark markdown with
// YAML frontmatter. It reports structural dependencies and asset
// references back through the planning layer's interfaces; the cache core
// never imports this package.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/discovery"
	"git.home.luguber.info/inful/sitegen/internal/incremental"
	"git.home.luguber.info/inful/sitegen/internal/indexes"
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// ErrDraft marks a page skipped because it is a draft and drafts are not
// being built.
var ErrDraft = errors.New("page is a draft")

// defaultLayout is the template a page uses when its frontmatter names
// none.
const defaultLayout = "base"

// Renderer converts page sources to HTML.
type Renderer struct {
	cfg *config.Config
	md  goldmark.Markdown
}

// New creates a renderer for the given project configuration.
func New(cfg *config.Config) *Renderer {
	return &Renderer{cfg: cfg, md: goldmark.New()}
}

// RenderPage renders one page source and returns the build result the
// orchestrator commits: resolved metadata, rendered content, the
// template dependency, and every relative asset the output references.
// Dependencies are additionally reported through the reporter so
// template include chains recorded by other pages compose with them.
func (r *Renderer) RenderPage(f discovery.File, reporter incremental.DependencyReporter) (incremental.PageResult, error) {
	meta, body, err := SplitFrontmatter(f.Data)
	if err != nil {
		return incremental.PageResult{}, fmt.Errorf("render %s: %w", f.Path, err)
	}

	draft := metaBool(meta, "draft")
	if draft && !r.cfg.BuildDrafts {
		return incremental.PageResult{}, fmt.Errorf("render %s: %w", f.Path, ErrDraft)
	}

	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return incremental.PageResult{}, fmt.Errorf("render %s: %w", f.Path, err)
	}

	layout := metaString(meta, "layout")
	if layout == "" {
		layout = defaultLayout
	}
	layoutPath := "layouts/" + layout + ".tmpl"
	if reporter != nil {
		reporter.Record(f.Path, layoutPath)
	}

	pm := indexes.PageMeta{
		Path:    f.Path,
		Title:   resolveTitle(meta, f.Path),
		Date:    metaTime(meta, "date"),
		Lastmod: metaTime(meta, "lastmod"),
		Kind:    "page",
		Section: sectionOf(f.Path),
		Tags:    metaStrings(meta, "tags"),
		Draft:   draft,
	}
	if pm.Lastmod.IsZero() {
		pm.Lastmod = pm.Date
	}

	return incremental.PageResult{
		Path:         f.Path,
		Meta:         pm,
		Dependencies: []string{layoutPath},
		Assets:       extractAssets(buf.Bytes(), f.Path),
		Content:      buf.String(),
	}, nil
}

// resolveTitle takes the frontmatter title or derives one from the file
// name: getting-started.md becomes "Getting Started".
func resolveTitle(meta map[string]any, pagePath string) string {
	if t := metaString(meta, "title"); t != "" {
		return t
	}
	base := strings.TrimSuffix(path.Base(pagePath), path.Ext(pagePath))
	base = strings.ReplaceAll(base, "_", "-")
	parts := strings.Split(base, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, " ")
}

// sectionOf returns the first directory under content/, or "" for pages
// at the content root.
func sectionOf(pagePath string) string {
	rest := strings.TrimPrefix(pagePath, "content/")
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[:i]
	}
	return ""
}

// extractAssets walks the rendered HTML and collects every relative
// asset reference: img/script src, stylesheet href. External URLs and
// anchors are ignored; site-absolute refs resolve against the source
// root and page-relative refs against the page's own directory (page
// bundles keep images next to their markdown).
func extractAssets(rendered []byte, pagePath string) []string {
	refs := sets.New[string]()

	doc, err := html.Parse(bytes.NewReader(rendered))
	if err != nil {
		return nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "img", "script", "source", "video", "audio":
				collectAttr(refs, n, "src", pagePath)
			case "link":
				collectAttr(refs, n, "href", pagePath)
			case "a":
				// Only direct links to files we track as assets.
				if ref, ok := attrValue(n, "href"); ok && hasAssetExt(ref) {
					addRef(refs, ref, pagePath)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if refs.Len() == 0 {
		return nil
	}
	return sets.SortedStrings(refs)
}

func collectAttr(refs sets.Set[string], n *html.Node, attr, pagePath string) {
	if ref, ok := attrValue(n, attr); ok {
		addRef(refs, ref, pagePath)
	}
}

func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name && a.Val != "" {
			return a.Val, true
		}
	}
	return "", false
}

func addRef(refs sets.Set[string], ref, pagePath string) {
	if strings.Contains(ref, "://") || strings.HasPrefix(ref, "//") ||
		strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "mailto:") {
		return
	}
	ref = strings.SplitN(ref, "#", 2)[0]
	ref = strings.SplitN(ref, "?", 2)[0]
	if ref == "" {
		return
	}

	var resolved string
	if strings.HasPrefix(ref, "/") {
		resolved = path.Clean(strings.TrimPrefix(ref, "/"))
	} else {
		resolved = path.Join(path.Dir(pagePath), ref)
	}
	if resolved == "" || resolved == "." || strings.HasPrefix(resolved, "../") {
		return
	}
	refs.Add(resolved)
}

var assetExtensions = sets.New(
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".css", ".js", ".pdf", ".woff", ".woff2", ".mp4", ".webm",
)

func hasAssetExt(ref string) bool {
	return assetExtensions.Has(strings.ToLower(path.Ext(strings.SplitN(ref, "?", 2)[0])))
}
