// Package discovery walks a project's source tree and yields every
// current source file as a canonical relative path plus its bytes. The
// cache core consumes exactly that shape; everything else about the
// tree's meaning (markup, templating) belongs to other collaborators.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/hashing"
)

// Kind classifies a source file by the role its path gives it.
type Kind string

const (
	KindPage     Kind = "page"
	KindTemplate Kind = "template"
	KindAsset    Kind = "asset"
	KindData     Kind = "data"
)

// File is one discovered source file.
type File struct {
	Path string // canonical relative slash path
	Kind Kind
	Data []byte
}

// Source converts to the hashing layer's input shape.
func (f File) Source() hashing.SourceFile {
	return hashing.SourceFile{Path: f.Path, Data: f.Data}
}

// The four well-known top-level source directories. Anything outside
// them (project config, READMEs, dotfiles) is not a build input; config
// changes surface through the build-context fingerprint instead.
const (
	contentDir = "content"
	layoutsDir = "layouts"
	staticDir  = "static"
	dataDir    = "data"
)

// markupExtensions are the page source types the renderer understands.
var markupExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
}

// Scanner walks one project root.
type Scanner struct {
	root string
}

// NewScanner creates a scanner for the project rooted at root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Scan returns every current source file with its bytes loaded. Dot
// directories (including the cache directory) are skipped wholesale.
func (s *Scanner) Scan() ([]File, error) {
	var files []File

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || !inSourceTree(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		kind, ok := classify(rel)
		if !ok {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", rel, readErr)
		}

		canonical, canonErr := hashing.CanonicalPath(rel)
		if canonErr != nil {
			return canonErr
		}
		files = append(files, File{Path: canonical, Kind: kind, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}
	return files, nil
}

// inSourceTree reports whether a directory path can contain build inputs.
func inSourceTree(rel string) bool {
	top := rel
	if i := strings.Index(rel, "/"); i >= 0 {
		top = rel[:i]
	}
	switch top {
	case contentDir, layoutsDir, staticDir, dataDir:
		return true
	}
	return false
}

// classify maps a relative file path to its role, or reports that the
// file is not a build input.
func classify(rel string) (Kind, bool) {
	top := rel
	if i := strings.Index(rel, "/"); i >= 0 {
		top = rel[:i]
	}
	switch top {
	case contentDir:
		ext := strings.ToLower(filepath.Ext(rel))
		if _, ok := markupExtensions[ext]; ok {
			return KindPage, true
		}
		// Page bundles carry images next to their markdown.
		return KindAsset, true
	case layoutsDir:
		return KindTemplate, true
	case staticDir:
		return KindAsset, true
	case dataDir:
		return KindData, true
	}
	return "", false
}

// Pages filters to page sources only.
func Pages(files []File) []File {
	var out []File
	for _, f := range files {
		if f.Kind == KindPage {
			out = append(out, f)
		}
	}
	return out
}

// Sources converts a file list to the hashing layer's input shape.
func Sources(files []File) []hashing.SourceFile {
	out := make([]hashing.SourceFile, 0, len(files))
	for _, f := range files {
		out = append(out, f.Source())
	}
	return out
}
