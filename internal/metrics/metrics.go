// Package metrics publishes Prometheus telemetry for the client SDK:
// outbound request outcomes, resource cache activity, optimistic rollback
// counts, and advisory throttle delays.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheLookupOutcome captures the result of a resource cache lookup.
type CacheLookupOutcome string

const (
	// CacheLookupHit indicates a fresh entry was served without a fetch.
	CacheLookupHit CacheLookupOutcome = "hit"
	// CacheLookupStaleHit indicates a stale entry was served while a
	// background revalidation ran.
	CacheLookupStaleHit CacheLookupOutcome = "stale_hit"
	// CacheLookupMiss indicates no usable entry was present.
	CacheLookupMiss CacheLookupOutcome = "miss"
	// CacheLookupError indicates the lookup itself failed.
	CacheLookupError CacheLookupOutcome = "error"
)

// CacheStoreOutcome captures the result of a resource cache store attempt.
type CacheStoreOutcome string

const (
	// CacheStoreStored indicates the entry was persisted.
	CacheStoreStored CacheStoreOutcome = "stored"
	// CacheStoreSuperseded indicates a newer query or invalidation arrived
	// first and the write was dropped.
	CacheStoreSuperseded CacheStoreOutcome = "superseded"
	// CacheStoreError indicates the store operation failed.
	CacheStoreError CacheStoreOutcome = "error"
)

// Recorder publishes Prometheus metrics for SDK activity. A nil Recorder is
// valid and records nothing, so call sites never need to guard.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	rollbacks      *prometheus.CounterVec
	throttleDelays *prometheus.CounterVec
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

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Outbound platform API requests by domain and operation.",
	}, []string{"domain", "operation", "status_code"})

	requestLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meridian",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed API requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"domain", "operation"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Resource cache operations by namespace.",
	}, []string{"namespace", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meridian",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for resource cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"namespace", "operation", "result"})

	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "mutate",
		Name:      "rollbacks_total",
		Help:      "Optimistic mutations rolled back after a server rejection.",
	}, []string{"namespace"})

	throttleDelays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "api",
		Name:      "throttle_delays_total",
		Help:      "Calls delayed by the advisory client-side throttle.",
	}, []string{"domain"})

	reg.MustRegister(requests, requestLatency, cacheOperations, cacheLatency, rollbacks, throttleDelays)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		requests:        requests,
		requestLatency:  requestLatency,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		rollbacks:       rollbacks,
		throttleDelays:  throttleDelays,
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

// Gatherer returns the underlying Prometheus gatherer for tests and
// advanced integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveRequest records the outcome and latency of one outbound API call.
// A statusCode of zero means no response was received.
func (r *Recorder) ObserveRequest(domain, operation string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "none"
	}
	r.requests.WithLabelValues(normalizeLabel(domain), normalizeLabel(operation), statusLabel).Inc()
	r.requestLatency.WithLabelValues(normalizeLabel(domain), normalizeLabel(operation)).Observe(duration.Seconds())
}

// ObserveCacheLookup records the result of a resource cache lookup.
func (r *Recorder) ObserveCacheLookup(namespace string, result CacheLookupOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheLookupMiss)
	}
	r.observeCache(normalizeLabel(namespace), "lookup", resultLabel, duration)
}

// ObserveCacheStore records the result of a resource cache store attempt.
func (r *Recorder) ObserveCacheStore(namespace string, result CacheStoreOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(CacheStoreError)
	}
	r.observeCache(normalizeLabel(namespace), "store", resultLabel, duration)
}

// ObserveRollback records one optimistic mutation rollback.
func (r *Recorder) ObserveRollback(namespace string) {
	if r == nil {
		return
	}
	r.rollbacks.WithLabelValues(normalizeLabel(namespace)).Inc()
}

// ObserveThrottleDelay records one call delayed by the advisory throttle.
func (r *Recorder) ObserveThrottleDelay(domain string) {
	if r == nil {
		return
	}
	r.throttleDelays.WithLabelValues(normalizeLabel(domain)).Inc()
}

func (r *Recorder) observeCache(namespace, operation, result string, duration time.Duration) {
	r.cacheOperations.WithLabelValues(namespace, operation, normalizeLabel(result)).Inc()
	r.cacheLatency.WithLabelValues(namespace, operation, normalizeLabel(result)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
