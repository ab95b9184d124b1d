// Package metrics exposes prometheus collectors for render, cache, and
// payload activity. All collectors register on a private registry so
// embedding hosts never collide with vellum's metric names, and the
// /metrics handler serves exactly this registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/vellum/internal/assets"
	"github.com/conneroisu/vellum/internal/jscontext"
)

// Metrics bundles every collector vellum records into.
type Metrics struct {
	registry *prometheus.Registry

	LinkBuilds        *prometheus.CounterVec
	LinkBuildDuration prometheus.Histogram
	LinksEmitted      *prometheus.CounterVec
	PayloadsFinalized prometheus.Counter
	PayloadRetrievals *prometheus.CounterVec
	ReloadBroadcasts  prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
}

// New creates the collectors on a fresh private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		LinkBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vellum_link_builds_total",
			Help: "Link set builds by outcome.",
		}, []string{"outcome"}),

		LinkBuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vellum_link_build_duration_seconds",
			Help:    "Time spent resolving chains and tokens per build.",
			Buckets: prometheus.DefBuckets,
		}),

		LinksEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vellum_links_emitted_total",
			Help: "Link entries emitted by asset kind.",
		}, []string{"kind"}),

		PayloadsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_payloads_finalized_total",
			Help: "Context payloads published.",
		}),

		PayloadRetrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vellum_payload_retrievals_total",
			Help: "Payload retrievals by outcome.",
		}, []string{"outcome"}),

		ReloadBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "vellum_reload_broadcasts_total",
			Help: "Live-reload messages sent to connected clients.",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vellum_http_requests_total",
			Help: "Preview server requests by route and status class.",
		}, []string{"route", "status"}),
	}
}

// ObserveTokenCache registers gauges that read the token cache counters on
// every scrape.
func (m *Metrics) ObserveTokenCache(cache *assets.TokenCache) {
	gauge := func(name, help string, read func(assets.CacheStats) float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, func() float64 { return read(cache.Stats()) }))
	}

	gauge("vellum_token_cache_hits_total", "Token cache hits.",
		func(s assets.CacheStats) float64 { return float64(s.Hits) })
	gauge("vellum_token_cache_misses_total", "Token cache misses.",
		func(s assets.CacheStats) float64 { return float64(s.Misses) })
	gauge("vellum_token_cache_invalidations_total", "Token cache invalidations.",
		func(s assets.CacheStats) float64 { return float64(s.Invalidations) })
	gauge("vellum_token_cache_entries", "Cached version tokens.",
		func(s assets.CacheStats) float64 { return float64(s.Entries) })
}

// ObservePayloadRegistry registers gauges over the payload registry's
// occupancy.
func (m *Metrics) ObservePayloadRegistry(reg *jscontext.Registry) {
	gauge := func(name, help string, read func(jscontext.RegistryStats) float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: name,
			Help: help,
		}, func() float64 { return read(reg.Stats()) }))
	}

	gauge("vellum_payloads_live", "Payloads currently retrievable.",
		func(s jscontext.RegistryStats) float64 { return float64(s.LivePayloads) })
	gauge("vellum_payload_scopes_open", "Request scopes currently open.",
		func(s jscontext.RegistryStats) float64 { return float64(s.OpenScopes) })
	gauge("vellum_payload_tombstones", "Disposed identifiers remembered.",
		func(s jscontext.RegistryStats) float64 { return float64(s.Tombstones) })
}

// Handler serves the private registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
