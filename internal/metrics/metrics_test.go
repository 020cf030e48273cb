package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveRequest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRequest("blog", "GET /blog", 200, 250*time.Millisecond)

	families := gather(t, rec, "meridian_api_requests_total", "meridian_api_request_duration_seconds")

	counter := findMetric(t, families["meridian_api_requests_total"], map[string]string{
		"domain":      "blog",
		"operation":   "GET /blog",
		"status_code": "200",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for api requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["meridian_api_request_duration_seconds"], map[string]string{
		"domain":    "blog",
		"operation": "GET /blog",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for request latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveRequestWithoutResponse(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRequest("contact", "POST /contact", 0, 10*time.Millisecond)

	families := gather(t, rec, "meridian_api_requests_total")
	counter := findMetric(t, families["meridian_api_requests_total"], map[string]string{
		"domain":      "contact",
		"operation":   "POST /contact",
		"status_code": "none",
	})
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup("blogs", CacheLookupStaleHit, 10*time.Millisecond)
	rec.ObserveCacheStore("blogs", CacheStoreStored, 5*time.Millisecond)

	families := gather(t, rec, "meridian_cache_operations_total", "meridian_cache_operation_duration_seconds")

	lookupMetric := findMetric(t, families["meridian_cache_operations_total"], map[string]string{
		"namespace": "blogs",
		"operation": "lookup",
		"result":    string(CacheLookupStaleHit),
	})
	if got := lookupMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected lookup counter 1, got %v", got)
	}

	storeMetric := findMetric(t, families["meridian_cache_operations_total"], map[string]string{
		"namespace": "blogs",
		"operation": "store",
		"result":    string(CacheStoreStored),
	})
	if got := storeMetric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected store counter 1, got %v", got)
	}

	latencyMetric := findMetric(t, families["meridian_cache_operation_duration_seconds"], map[string]string{
		"namespace": "blogs",
		"operation": "store",
		"result":    string(CacheStoreStored),
	})
	hist := latencyMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for cache store latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
}

func TestRecorderObserveRollbackAndThrottle(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveRollback("blogs")
	rec.ObserveRollback("blogs")
	rec.ObserveThrottleDelay("contact")

	families := gather(t, rec, "meridian_mutate_rollbacks_total", "meridian_api_throttle_delays_total")

	rollback := findMetric(t, families["meridian_mutate_rollbacks_total"], map[string]string{"namespace": "blogs"})
	if got := rollback.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected rollback counter 2, got %v", got)
	}
	delay := findMetric(t, families["meridian_api_throttle_delays_total"], map[string]string{"domain": "contact"})
	if got := delay.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected throttle counter 1, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveRequest("blog", "GET /blog", 200, time.Millisecond)
	rec.ObserveCacheLookup("blogs", CacheLookupHit, time.Millisecond)
	rec.ObserveCacheStore("blogs", CacheStoreStored, time.Millisecond)
	rec.ObserveRollback("blogs")
	rec.ObserveThrottleDelay("blog")
	if rec.Gatherer() == nil {
		t.Fatalf("expected fallback gatherer")
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
