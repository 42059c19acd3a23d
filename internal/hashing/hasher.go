// Package hashing computes stable content hashes for source files and
// diffs them against the previous build's recorded hash map. Hashes are
// content-based, never mtime-based: touching a file without changing its
// bytes does not trigger a rebuild.
package hashing

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// SourceFile is what discovery yields for every current source file:
// a canonical relative path plus the file's bytes.
type SourceFile struct {
	Path string
	Data []byte
}

// HashBytes returns the stable hex content hash of data.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// CanonicalPath normalizes p to the form used as a cache key: relative,
// forward-slash separated, cleaned. Absolute paths and paths escaping the
// source root are rejected so persisted caches stay portable across
// machines and checkouts.
func CanonicalPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute path not allowed as cache key: %s", p)
	}
	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("path escapes source root: %s", p)
	}
	return cleaned, nil
}

// Hasher hashes file sets on a bounded worker pool.
type Hasher struct {
	workers int
}

// NewHasher creates a hasher with the given pool size. A non-positive
// size falls back to the CPU count.
func NewHasher(workers int) *Hasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Hasher{workers: workers}
}

// HashAll hashes every file and returns path → hash. Workers only compute
// and return results; the map is assembled under a mutex on the
// coordinating side, so no shared cache state is ever touched from the
// pool.
func (h *Hasher) HashAll(ctx context.Context, files []SourceFile) (map[string]string, error) {
	out := make(map[string]string, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)

	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			canonical, err := CanonicalPath(f.Path)
			if err != nil {
				return fmt.Errorf("hash %s: %w", f.Path, err)
			}
			hash := HashBytes(f.Data)
			mu.Lock()
			out[canonical] = hash
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
