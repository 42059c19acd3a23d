package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	planDuration    prom.Histogram
	persistDuration prom.Histogram
	buildOutcome    *prom.CounterVec
	rebuildSize     *prom.HistogramVec
	cacheLoads      *prom.CounterVec
	lockContention  *prom.CounterVec
	hashWorkers     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.planDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "plan_duration_seconds",
			Help:      "Duration of rebuild-plan computation",
			Buckets:   prom.DefBuckets,
		})
		pr.persistDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "cache_persist_duration_seconds",
			Help:      "Duration of post-build cache persistence",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by terminal status",
		}, []string{"outcome"})
		pr.rebuildSize = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "rebuild_plan_size",
			Help:      "Number of scheduled items per rebuild plan",
			Buckets:   prom.ExponentialBuckets(1, 4, 8),
		}, []string{"kind"})
		pr.cacheLoads = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "cache_loads_total",
			Help:      "Cache load results by cache file and warm/cold",
		}, []string{"cache", "result"})
		pr.lockContention = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "cache_lock_contention_total",
			Help:      "Times a cache lock was contended by another process",
		}, []string{"cache"})
		pr.hashWorkers = prom.NewGauge(prom.GaugeOpts{
			Namespace: "sitegen",
			Name:      "hash_workers",
			Help:      "Configured content-hashing worker pool size",
		})
		reg.MustRegister(pr.planDuration, pr.persistDuration, pr.buildOutcome,
			pr.rebuildSize, pr.cacheLoads, pr.lockContention, pr.hashWorkers)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePlanDuration(d time.Duration) {
	if p == nil || p.planDuration == nil {
		return
	}
	p.planDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePersistDuration(d time.Duration) {
	if p == nil || p.persistDuration == nil {
		return
	}
	p.persistDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome OutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveRebuildSize(pages, assets, tags int) {
	if p == nil || p.rebuildSize == nil {
		return
	}
	p.rebuildSize.WithLabelValues("pages").Observe(float64(pages))
	p.rebuildSize.WithLabelValues("assets").Observe(float64(assets))
	p.rebuildSize.WithLabelValues("tags").Observe(float64(tags))
}

func (p *PrometheusRecorder) IncCacheLoad(cache string, warm bool) {
	if p == nil || p.cacheLoads == nil {
		return
	}
	result := "cold"
	if warm {
		result = "warm"
	}
	p.cacheLoads.WithLabelValues(cache, result).Inc()
}

func (p *PrometheusRecorder) IncLockContention(cache string) {
	if p == nil || p.lockContention == nil {
		return
	}
	p.lockContention.WithLabelValues(cache).Inc()
}

func (p *PrometheusRecorder) SetHashWorkers(n int) {
	if p == nil || p.hashWorkers == nil {
		return
	}
	p.hashWorkers.Set(float64(n))
}
