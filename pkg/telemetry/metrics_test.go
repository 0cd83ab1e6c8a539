package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAPIRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveAPIRequest("POST", "/api/v1/usage/:entity/:id", 200, 15*time.Millisecond)
	m.ObserveAPIRequest("POST", "/api/v1/usage/:entity/:id", 200, 5*time.Millisecond)
	m.ObserveAPIRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("POST", "/api/v1/usage/:entity/:id", "200")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "unknown", "404")); got != 1 {
		t.Fatalf("expected unknown route to be labelled, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPIRequest("GET", "/health", 200, time.Millisecond)
	m.IncRateLimited("table")
	m.ObserveEntityLookup(true)
}

func TestObserveEntityLookup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveEntityLookup(true)
	m.ObserveEntityLookup(false)
	m.ObserveEntityLookup(false)

	if got := testutil.ToFloat64(m.entityLookup.WithLabelValues("miss")); got != 2 {
		t.Fatalf("expected 2 misses, got %v", got)
	}
}
