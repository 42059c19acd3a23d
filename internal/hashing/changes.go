package hashing

import (
	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// ChangeSet is the added/modified/deleted file partition computed fresh on
// every build. It is never persisted.
type ChangeSet struct {
	Added    sets.Set[string]
	Modified sets.Set[string]
	Deleted  sets.Set[string]

	// Renames pairs a deleted path with an added path whose content hash
	// matches. Informational only: the plan still treats a rename as
	// delete+add, which is always correct, just not maximally efficient.
	Renames map[string]string
}

// NewChangeSet returns an empty change set.
func NewChangeSet() ChangeSet {
	return ChangeSet{
		Added:    sets.New[string](),
		Modified: sets.New[string](),
		Deleted:  sets.New[string](),
	}
}

// Empty reports whether nothing changed since the previous build.
func (c ChangeSet) Empty() bool {
	return c.Added.Len() == 0 && c.Modified.Len() == 0 && c.Deleted.Len() == 0
}

// Touched returns added ∪ modified, the inputs to dependency propagation.
func (c ChangeSet) Touched() sets.Set[string] {
	return c.Added.Clone().Union(c.Modified)
}

// Diff compares the current hash map against the previous build's
// recorded hashes. Files with identical hashes are untouched and excluded
// entirely.
func Diff(current, previous map[string]string) ChangeSet {
	cs := NewChangeSet()

	for path, hash := range current {
		prevHash, existed := previous[path]
		switch {
		case !existed:
			cs.Added.Add(path)
		case prevHash != hash:
			cs.Modified.Add(path)
		}
	}

	for path := range previous {
		if _, stillThere := current[path]; !stillThere {
			cs.Deleted.Add(path)
		}
	}

	return cs
}

// DetectRenames fills in the Renames map by matching each deleted path's
// previous hash against added paths' current hashes. First match wins;
// ambiguous matches (several added files with the same content) pair
// arbitrarily, which is fine for the logging-only role this plays.
func (c *ChangeSet) DetectRenames(current, previous map[string]string) {
	if c.Deleted.Len() == 0 || c.Added.Len() == 0 {
		return
	}

	byHash := make(map[string]string, c.Added.Len())
	for added := range c.Added {
		byHash[current[added]] = added
	}

	for deleted := range c.Deleted {
		if added, ok := byHash[previous[deleted]]; ok {
			if c.Renames == nil {
				c.Renames = make(map[string]string)
			}
			c.Renames[deleted] = added
			delete(byHash, previous[deleted])
		}
	}
}
