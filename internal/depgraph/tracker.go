// Package depgraph records which files each page structurally depends on
// (templates, partials, includes, data files) and answers the reverse
// question: given a set of changed files, which pages are affected.
package depgraph

import (
	"sort"
	"sync"

	"git.home.luguber.info/inful/sitegen/internal/util/sets"
)

// Tracker holds the forward dependency edges for one build. Recording is
// mutex-guarded because the external renderer reports dependencies from
// worker goroutines while pages are processed.
type Tracker struct {
	mu      sync.RWMutex
	forward map[string]sets.Set[string]
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{forward: make(map[string]sets.Set[string])}
}

// FromEdges rebuilds a tracker from a persisted edge map.
func FromEdges(edges map[string][]string) *Tracker {
	t := NewTracker()
	for page, deps := range edges {
		for _, dep := range deps {
			t.Record(page, dep)
		}
	}
	return t
}

// Record appends a forward edge: page structurally depends on dependency.
// Recording the same edge twice is a no-op; self-edges are dropped since a
// page always rebuilds when its own source changes anyway.
func (t *Tracker) Record(page, dependency string) {
	if page == "" || dependency == "" || page == dependency {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	deps, ok := t.forward[page]
	if !ok {
		deps = sets.New[string]()
		t.forward[page] = deps
	}
	deps.Add(dependency)
}

// Dependencies returns the sorted direct dependencies of page.
func (t *Tracker) Dependencies(page string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sets.SortedStrings(t.forward[page])
}

// Remove drops a page's forward edges, used when its source is deleted.
func (t *Tracker) Remove(page string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.forward, page)
}

// ReplacePage swaps a page's recorded dependencies for a fresh set,
// discarding edges from the previous build of the same page.
func (t *Tracker) ReplacePage(page string, dependencies []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	deps := sets.New[string]()
	for _, dep := range dependencies {
		if dep != "" && dep != page {
			deps.Add(dep)
		}
	}
	t.forward[page] = deps
}

// Edges returns a sorted snapshot of the forward edge map, suitable for
// persisting.
func (t *Tracker) Edges() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]string, len(t.forward))
	for page, deps := range t.forward {
		out[page] = sets.SortedStrings(deps)
	}
	return out
}

// AffectedBy returns every page reachable from any changed file through
// the dependency graph's reverse index, resolved to a fixpoint so
// include chains of arbitrary depth propagate (A includes B includes C:
// changing C affects A). Termination is bounded by the total page count
// since each iteration only ever adds pages. A page with zero recorded
// dependencies is never returned here; it rebuilds only when its own
// source changes, which the orchestrator handles separately.
func (t *Tracker) AffectedBy(changed sets.Set[string]) sets.Set[string] {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// Reverse index built once per invocation: file → directly dependent pages.
	reverse := make(map[string]sets.Set[string])
	for page, deps := range t.forward {
		for dep := range deps {
			dependents, ok := reverse[dep]
			if !ok {
				dependents = sets.New[string]()
				reverse[dep] = dependents
			}
			dependents.Add(page)
		}
	}

	affected := sets.New[string]()
	frontier := changed.Clone()
	for frontier.Len() > 0 {
		next := sets.New[string]()
		for file := range frontier {
			for dependent := range reverse[file] {
				if !affected.Has(dependent) {
					affected.Add(dependent)
					next.Add(dependent)
				}
			}
		}
		frontier = next
	}
	return affected
}

// Pages returns the sorted list of pages with at least one recorded edge.
func (t *Tracker) Pages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.forward))
	for page := range t.forward {
		out = append(out, page)
	}
	sort.Strings(out)
	return out
}
