package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for the HTTP surface.
type Metrics struct {
	apiRequests  *prometheus.CounterVec
	apiDuration  *prometheus.HistogramVec
	rateLimited  *prometheus.CounterVec
	entityLookup *prometheus.CounterVec
}

// NewMetrics registers HTTP metrics on reg, or on the default registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entityusage_api_requests_total",
		Help: "Counts API requests by method, route, and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "entityusage_api_duration_seconds",
		Help:    "API request latency per method/route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entityusage_rate_limited_total",
		Help: "Usage reports rejected by the rate limiter.",
	}, []string{"entity_type"})

	entityLookup := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entityusage_entity_lookup_total",
		Help: "Entity resolutions by cache outcome.",
	}, []string{"result"})

	reg.MustRegister(apiRequests, apiDuration, rateLimited, entityLookup)

	return &Metrics{
		apiRequests:  apiRequests,
		apiDuration:  apiDuration,
		rateLimited:  rateLimited,
		entityLookup: entityLookup,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

func (m *Metrics) IncRateLimited(entityType string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(sanitizeLabel(entityType)).Inc()
}

// ObserveEntityLookup counts resolver cache hits and misses.
func (m *Metrics) ObserveEntityLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.entityLookup.WithLabelValues(result).Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
