package observability

import (
	"time"

	"github.com/boddenberg/pipeline-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	sourceErrors      *prometheus.CounterVec
	fetchErrors       *prometheus.CounterVec
	mutations         *prometheus.CounterVec
	rollbacks         *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_operation_duration_seconds",
				Help:    "Duration of store operations, including simulated or remote round trips.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		sourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_source_errors_total",
				Help: "Total errors returned by data sources.",
			},
			[]string{"source"},
		),
		fetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_fetch_errors_total",
				Help: "Total failed store fetches.",
			},
			[]string{"store"},
		),
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_mutations_total",
				Help: "Deal mutations by operation and outcome.",
			},
			[]string{"op", "outcome"},
		),
		rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_rollbacks_total",
				Help: "Optimistic rollbacks applied, or skipped because a newer write owned the record.",
			},
			[]string{"result"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordOperationDuration records the duration of a store operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrSourceError increments the data source error counter.
func (m *Metrics) IncrSourceError(source string) {
	m.sourceErrors.WithLabelValues(source).Inc()
}

// IncrFetchError increments the failed fetch counter of a store.
func (m *Metrics) IncrFetchError(store string) {
	m.fetchErrors.WithLabelValues(store).Inc()
}

// IncrMutation counts a mutation; outcome is "success" or "failed".
func (m *Metrics) IncrMutation(op, outcome string) {
	m.mutations.WithLabelValues(op, outcome).Inc()
}

// IncrRollback counts a rollback; result is "applied" or "skipped".
func (m *Metrics) IncrRollback(result string) {
	m.rollbacks.WithLabelValues(result).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

var mutationOps = []string{"move", "add", "update"}

// GetBoardSnapshot returns a snapshot of board-related metrics suitable for the
// GET /v1/metrics/board endpoint.
func (m *Metrics) GetBoardSnapshot() *domain.BoardMetrics {
	var succeeded, failed float64
	for _, op := range mutationOps {
		succeeded += getCounterValue(m.mutations, op, "success")
		failed += getCounterValue(m.mutations, op, "failed")
	}
	fetchErrors := 0.0
	for _, store := range []string{"deals", "signals", "momentum"} {
		fetchErrors += getCounterValue(m.fetchErrors, store)
	}
	hits := getCounterValue(m.cacheHits, "momentum")
	misses := getCounterValue(m.cacheMisses, "momentum")

	total := succeeded + failed
	failureRate := float64(0)
	cacheHitRate := float64(0)
	if total > 0 {
		failureRate = failed / total
	}
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.BoardMetrics{
		Mutations:        int64(total),
		FailedMutations:  int64(failed),
		RollbacksApplied: int64(getCounterValue(m.rollbacks, "applied")),
		RollbacksSkipped: int64(getCounterValue(m.rollbacks, "skipped")),
		FetchErrors:      int64(fetchErrors),
		FailureRate:      failureRate,
		CacheHitRate:     cacheHitRate,
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
