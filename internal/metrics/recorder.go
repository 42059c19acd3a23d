package metrics

import "time"

// OutcomeLabel enumerates terminal build outcomes for counters.
type OutcomeLabel string

const (
	OutcomeFull        OutcomeLabel = "full"
	OutcomeIncremental OutcomeLabel = "incremental"
	OutcomeNoop        OutcomeLabel = "noop"
	OutcomeFailed      OutcomeLabel = "failed"
)

// Recorder defines observability hooks for plan computation and cache
// persistence. Implementations may forward to Prometheus, OpenTelemetry,
// etc. All methods must be safe for nil receivers when using the
// NoopRecorder (allowing optional injection).
type Recorder interface {
	ObservePlanDuration(d time.Duration)
	ObservePersistDuration(d time.Duration)
	IncBuildOutcome(outcome OutcomeLabel)
	ObserveRebuildSize(pages, assets, tags int)
	IncCacheLoad(cache string, warm bool)
	IncLockContention(cache string)
	SetHashWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePlanDuration(time.Duration)    {}
func (NoopRecorder) ObservePersistDuration(time.Duration) {}
func (NoopRecorder) IncBuildOutcome(OutcomeLabel)         {}
func (NoopRecorder) ObserveRebuildSize(int, int, int)     {}
func (NoopRecorder) IncCacheLoad(string, bool)            {}
func (NoopRecorder) IncLockContention(string)             {}
func (NoopRecorder) SetHashWorkers(int)                   {}
