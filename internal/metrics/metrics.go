package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AttemptOutcome labels a single model invocation for metrics purposes.
type AttemptOutcome string

const (
	// AttemptSuccess records a completed generation.
	AttemptSuccess AttemptOutcome = "success"
	// AttemptRateLimited records a provider rate-limit rejection.
	AttemptRateLimited AttemptOutcome = "rate_limited"
	// AttemptTransient records a non-retryable provider failure.
	AttemptTransient AttemptOutcome = "transient"
	// AttemptFatal records a configuration-level provider failure.
	AttemptFatal AttemptOutcome = "fatal"
)

// CacheResult labels the outcome of a response cache operation.
type CacheResult string

const (
	// CacheHit indicates a lookup reused a cached answer.
	CacheHit CacheResult = "hit"
	// CacheMiss indicates no cached answer was present.
	CacheMiss CacheResult = "miss"
	// CacheStored indicates an answer was persisted.
	CacheStored CacheResult = "stored"
	// CacheError indicates the operation failed.
	CacheError CacheResult = "error"
)

// Recorder publishes Prometheus metrics for query handling.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	queryRequests *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec

	modelAttempts   *prometheus.CounterVec
	cacheOperations *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	queryRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio",
		Subsystem: "query",
		Name:      "requests_total",
		Help:      "Total /query requests answered by the orchestrator.",
	}, []string{"model", "from_cache"})

	queryLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portfolio",
		Subsystem: "query",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed /query requests.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})

	modelAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio",
		Subsystem: "llm",
		Name:      "attempts_total",
		Help:      "Model invocation attempts grouped by classified outcome.",
	}, []string{"model", "outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portfolio",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Response cache operations executed by the orchestrator.",
	}, []string{"operation", "result"})

	reg.MustRegister(queryRequests, queryLatency, modelAttempts, cacheOperations)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		queryRequests:   queryRequests,
		queryLatency:    queryLatency,
		modelAttempts:   modelAttempts,
		cacheOperations: cacheOperations,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveQuery records the provenance and latency of a completed answer.
func (r *Recorder) ObserveQuery(model string, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	modelLabel := normalizeLabel(model)
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.queryRequests.WithLabelValues(modelLabel, cacheLabel).Inc()
	r.queryLatency.WithLabelValues(modelLabel).Observe(duration.Seconds())
}

// ObserveAttempt records a single classified model invocation.
func (r *Recorder) ObserveAttempt(model string, outcome AttemptOutcome) {
	if r == nil {
		return
	}
	r.modelAttempts.WithLabelValues(normalizeLabel(model), string(outcome)).Inc()
}

// ObserveCache records the result of a response cache operation.
func (r *Recorder) ObserveCache(operation string, result CacheResult) {
	if r == nil {
		return
	}
	r.cacheOperations.WithLabelValues(normalizeLabel(operation), string(result)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
