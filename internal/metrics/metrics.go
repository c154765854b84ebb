// Package metrics wraps the Prometheus collectors exposed by the stats worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles all collectors the worker updates. Each worker process
// owns exactly one Registry; tests may create as many as they like since the
// collectors register against a private prometheus.Registry.
type Registry struct {
	reg *prometheus.Registry

	// Ingestion
	CyclesTotal    *prometheus.CounterVec // by loop: listing | explorer
	MatchesSaved   prometheus.Counter
	MatchesSkipped *prometheus.CounterVec // by reason
	ProviderCalls  *prometheus.CounterVec // by endpoint
	ProviderErrors *prometheus.CounterVec // by endpoint

	// Retention
	RebuildsTotal   prometheus.Counter
	RebuildDuration prometheus.Histogram
	MatchesRetained prometheus.Gauge

	// Opponent cache
	OpponentCache *prometheus.CounterVec // by result: hit | miss | stale
}

// Skip reasons recorded under dota_matches_skipped_total.
const (
	SkipExisting   = "existing"
	SkipIncomplete = "incomplete"
	SkipWrongMode  = "wrong_mode"
	SkipFetchError = "fetch_error"
	SkipSaveError  = "save_error"
)

// NewRegistry creates all collectors on a fresh Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dota_ingest_cycles_total",
			Help: "Completed ingestion cycles by loop",
		}, []string{"loop"}),
		MatchesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "dota_matches_saved_total",
			Help: "New matches committed to the datastore",
		}),
		MatchesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dota_matches_skipped_total",
			Help: "Matches skipped during ingestion by reason",
		}, []string{"reason"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dota_provider_requests_total",
			Help: "Upstream provider requests issued by endpoint",
		}, []string{"endpoint"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dota_provider_errors_total",
			Help: "Upstream provider request failures by endpoint",
		}, []string{"endpoint"}),
		RebuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dota_aggregate_rebuilds_total",
			Help: "Full aggregate rebuilds triggered by retention",
		}),
		RebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dota_aggregate_rebuild_seconds",
			Help:    "Duration of eviction + full aggregate rebuild",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		MatchesRetained: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dota_matches_retained",
			Help: "Match rows in the datastore after the last retention pass",
		}),
		OpponentCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dota_opponent_cache_reads_total",
			Help: "Opponent-aggregate cache reads by result",
		}, []string{"result"}),
	}
}

// CacheRead records one opponent-cache read outcome.
func (r *Registry) CacheRead(result string) {
	r.OpponentCache.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler exposing the worker's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
