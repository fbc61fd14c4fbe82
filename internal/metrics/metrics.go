package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActivePollers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketstream_active_pollers",
		Help: "Number of symbol pollers currently running.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketstream_active_sessions",
		Help: "Number of live dashboard sessions.",
	})

	QuotesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketstream_quotes_published_total",
		Help: "Quotes published to the hub, by symbol.",
	}, []string{"symbol"})

	QuotesDroppedStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketstream_quotes_dropped_stale_total",
		Help: "Quotes dropped because an equal or newer quote was already published.",
	})

	QuotesDroppedBackpressure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketstream_quotes_dropped_backpressure_total",
		Help: "Quotes evicted from a slow session's outbound buffer.",
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketstream_upstream_errors_total",
		Help: "Upstream fetch failures by classified kind.",
	}, []string{"kind"})

	TrendingRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketstream_trending_refresh_failures_total",
		Help: "Failed trending-set refreshes (previous set kept).",
	})
)

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
