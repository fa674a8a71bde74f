package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's own operational counters on a private registry.
type Metrics struct {
	registry       *prometheus.Registry
	reportRequests *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
}

// NewMetrics creates and registers the service metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	reportRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devboard_report_requests_total",
		Help: "Report requests by period and outcome.",
	}, []string{"period", "outcome"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devboard_cache_lookups_total",
		Help: "Cache tier lookups by tier and outcome.",
	}, []string{"tier", "outcome"})

	registry.MustRegister(reportRequests, cacheLookups)

	return &Metrics{
		registry:       registry,
		reportRequests: reportRequests,
		cacheLookups:   cacheLookups,
	}
}

// Handler renders the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReport records one report request outcome.
func (m *Metrics) ObserveReport(period, outcome string) {
	if m == nil {
		return
	}
	m.reportRequests.WithLabelValues(period, outcome).Inc()
}

// ObserveCache records one cache tier lookup outcome.
func (m *Metrics) ObserveCache(tier, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tier, outcome).Inc()
}
