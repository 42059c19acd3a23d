package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/atomicio"
	"git.home.luguber.info/inful/sitegen/internal/lockfile"
)

// lockTimeout bounds how long Save/Load wait on a contended cache file
// before giving up. Load gives up quietly (empty cache); Save surfaces
// the error because silently dropping a persist would erase the next
// build's incremental performance with no visible symptom.
const lockTimeout = 30 * time.Second

// Store persists entries of one Cacheable type to a single JSON file
// wrapped in a {version, items} envelope. Load is tolerant: a missing,
// unreadable, malformed, or version-mismatched file yields an empty slice
// and a warning, never an error. Save is strict and atomic.
type Store[T Cacheable] struct {
	version int
	decode  DecodeFunc[T]
	logger  *slog.Logger
}

// NewStore creates a store for entries at the given schema version.
func NewStore[T Cacheable](version int, decode DecodeFunc[T]) *Store[T] {
	return &Store[T]{
		version: version,
		decode:  decode,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Store[T]) WithLogger(logger *slog.Logger) *Store[T] {
	s.logger = logger
	return s
}

type envelope struct {
	Version int              `json:"version"`
	Items   []map[string]any `json:"items"`
}

// Save serializes items and writes them to path under an exclusive lock.
func (s *Store[T]) Save(ctx context.Context, path string, items []T) error {
	env := envelope{
		Version: s.version,
		Items:   make([]map[string]any, 0, len(items)),
	}
	for _, item := range items {
		env.Items = append(env.Items, item.ToPrimitives())
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache %s: %w", path, err)
	}

	guard, err := lockfile.Acquire(ctx, path, lockfile.Exclusive, lockTimeout)
	if err != nil {
		return fmt.Errorf("lock cache for write: %w", err)
	}
	defer guard.Release()

	if err := atomicio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("persist cache %s: %w", path, err)
	}
	return nil
}

// Load reads entries from path under a shared lock. Every failure mode
// short of a working file at the right version degrades to an empty
// slice: cache miss is normal control flow, not an error. Individually
// malformed items are dropped; the rest of the file is still trusted.
func (s *Store[T]) Load(ctx context.Context, path string) []T {
	guard, err := lockfile.Acquire(ctx, path, lockfile.Shared, lockTimeout)
	if err != nil {
		s.logger.Warn("Could not lock cache file for reading, treating as empty",
			"path", path, "error", err)
		return nil
	}
	defer guard.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Cache file unreadable, treating as empty",
				"path", path, "error", err)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("Cache file malformed, treating as empty",
			"path", path, "error", err)
		return nil
	}

	if env.Version != s.version {
		s.logger.Warn("Cache schema version mismatch, treating as empty",
			"path", path,
			"recorded_version", env.Version,
			"current_version", s.version)
		return nil
	}

	items := make([]T, 0, len(env.Items))
	for i, prim := range env.Items {
		item, err := s.decode(prim)
		if err != nil {
			s.logger.Warn("Dropping malformed cache entry",
				"path", path, "index", i, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}
