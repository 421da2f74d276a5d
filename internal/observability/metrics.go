// Package observability registers the service's Prometheus metrics.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "route", "status"},
	)

	tileFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_fetch_duration_seconds",
			Help:    "Latency of backing tile queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"kind", "outcome"},
	)

	tileCacheResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_results_total",
			Help: "Tile cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	catalogLayers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_layers",
			Help: "Number of layers in the published catalog snapshot.",
		},
		[]string{"kind"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tileserv_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, seconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(seconds)
}

func ObserveTileFetch(kind string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tileFetchDurationSeconds.WithLabelValues(kind, outcome).Observe(seconds)
}

func IncCacheResult(tier, outcome string) {
	tileCacheResultsTotal.WithLabelValues(tier, outcome).Inc()
}

func SetCatalogSize(tables, functions int) {
	catalogLayers.WithLabelValues("table").Set(float64(tables))
	catalogLayers.WithLabelValues("function").Set(float64(functions))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "unknown"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
