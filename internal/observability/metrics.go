// Package observability exposes Prometheus metrics for the edge cache
// worker. Metrics register against their own registry so tests can create
// independent instances without collisions.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// CacheHits counts lookups served from the cache, by strategy.
	CacheHits *prometheus.CounterVec
	// CacheMisses counts lookups that had to go to the network, by strategy.
	CacheMisses *prometheus.CounterVec
	// OfflineFallbacks counts responses served from the offline document.
	OfflineFallbacks prometheus.Counter
	// FetchFailures counts upstream fetches that returned no response.
	FetchFailures prometheus.Counter
	// GenerationsEvicted counts stale cache generations deleted at activation.
	GenerationsEvicted prometheus.Counter
	// PrecacheFailures counts static assets that failed to pre-cache at install.
	PrecacheFailures prometheus.Counter
	// ReportArtifacts counts report artifacts stored via the message
	// protocol, by outcome (cached/failed).
	ReportArtifacts *prometheus.CounterVec
	// BroadcastsSent counts protocol messages broadcast to pages, by type.
	BroadcastsSent *prometheus.CounterVec
	// ConnectedPages tracks currently connected page clients.
	ConnectedPages prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_cache_hits_total",
		Help: "Lookups served from the cache, by strategy.",
	}, []string{"strategy"})
	m.CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_cache_misses_total",
		Help: "Lookups that required a network fetch, by strategy.",
	}, []string{"strategy"})
	m.OfflineFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecache_offline_fallbacks_total",
		Help: "Responses degraded to the offline fallback document.",
	})
	m.FetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecache_fetch_failures_total",
		Help: "Upstream fetches that failed with no usable response.",
	})
	m.GenerationsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecache_generations_evicted_total",
		Help: "Stale cache generations deleted during activation.",
	})
	m.PrecacheFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "edgecache_precache_failures_total",
		Help: "Static assets that could not be pre-cached at install.",
	})
	m.ReportArtifacts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_report_artifacts_total",
		Help: "Report artifacts processed by the cache protocol, by outcome.",
	}, []string{"outcome"})
	m.BroadcastsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "edgecache_broadcasts_sent_total",
		Help: "Protocol messages broadcast to connected pages, by type.",
	}, []string{"type"})
	m.ConnectedPages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "edgecache_connected_pages",
		Help: "Currently connected page clients.",
	})

	collectors := []prometheus.Collector{
		m.CacheHits, m.CacheMisses, m.OfflineFallbacks, m.FetchFailures,
		m.GenerationsEvicted, m.PrecacheFailures, m.ReportArtifacts,
		m.BroadcastsSent, m.ConnectedPages,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
