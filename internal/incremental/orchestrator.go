// Package incremental coordinates one build: it loads the persisted
// caches, computes the minimal rebuild plan for the current source tree,
// and, only after the caller reports a successful build, commits the
// updated caches back to disk. A failed build leaves every cache file
// exactly as the previous successful build wrote it.
package incremental

import (
	"path/filepath"
	"runtime"

	"git.home.luguber.info/inful/sitegen/internal/hashing"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

// CacheDirName is the cache directory colocated with the project root.
// It lives next to the generated-output directory, never inside it, so
// cleaning output cannot destroy cache state.
const CacheDirName = ".sitegen-cache"

// Index file names inside the cache directory. The root aggregate's own
// file name lives with the aggregate in the buildcache package.
const (
	pageMetaFileName = "pagemeta.json"
	taxonomyFileName = "taxonomy.json"
	assetsFileName   = "assets.json"
)

// Orchestrator plans and commits builds for one project.
type Orchestrator struct {
	cacheDir    string
	fingerprint string
	hasher      *hashing.Hasher
	workers     int
	recorder    metrics.Recorder
	forceFull   bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder injects a metrics recorder. The default records nothing.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithHashWorkers bounds the content-hashing worker pool. Non-positive
// falls back to the CPU count.
func WithHashWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithForceFull discards any warm cache state and plans a full rebuild.
func WithForceFull(force bool) Option {
	return func(o *Orchestrator) { o.forceFull = force }
}

// NewOrchestrator creates an orchestrator writing its caches under
// cacheDir and gating them on the given build-context fingerprint.
func NewOrchestrator(cacheDir, fingerprint string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cacheDir:    cacheDir,
		fingerprint: fingerprint,
		workers:     runtime.NumCPU(),
		recorder:    metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.hasher = hashing.NewHasher(o.workers)
	return o
}

func (o *Orchestrator) indexPath(name string) string {
	return filepath.Join(o.cacheDir, name)
}
