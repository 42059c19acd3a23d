package metrics

import "time"

type testRecorder struct {
	planObservations    int
	persistObservations int
	buildOutcomes       map[OutcomeLabel]int
	cacheLoads          map[string]int
	contention          map[string]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		buildOutcomes: map[OutcomeLabel]int{},
		cacheLoads:    map[string]int{},
		contention:    map[string]int{},
	}
}

func (t *testRecorder) ObservePlanDuration(_ time.Duration)    { t.planObservations++ }
func (t *testRecorder) ObservePersistDuration(_ time.Duration) { t.persistObservations++ }
func (t *testRecorder) IncBuildOutcome(outcome OutcomeLabel)   { t.buildOutcomes[outcome]++ }
func (t *testRecorder) ObserveRebuildSize(int, int, int)       {}
func (t *testRecorder) IncCacheLoad(cache string, _ bool)      { t.cacheLoads[cache]++ }
func (t *testRecorder) IncLockContention(cache string)         { t.contention[cache]++ }
func (t *testRecorder) SetHashWorkers(int)                     {}
