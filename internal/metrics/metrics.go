// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishtracker_ingest_total",
			Help: "Catch submissions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishtracker_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fishtracker_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishtracker_rate_limited_total",
			Help: "Requests refused by a rate limiter, by limiter scope",
		},
		[]string{"scope"},
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fishtracker_live_connections",
			Help: "Open admin live-feed websocket connections",
		},
	)
)

// RecordIngest counts one submission. outcome is "accepted" or a rejection reason.
func RecordIngest(kind, outcome string) {
	IngestTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordRateLimited(scope string) {
	RateLimitedTotal.WithLabelValues(scope).Inc()
}

func TrackLiveConnection(open bool) {
	if open {
		LiveConnections.Inc()
		return
	}
	LiveConnections.Dec()
}
