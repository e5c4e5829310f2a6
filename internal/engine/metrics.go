package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casefile_generation_requests_total",
			Help: "Total number of requests to the generation service.",
		},
		[]string{"backend", "kind", "status"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casefile_generation_request_duration_seconds",
			Help:    "Histogram of generation request durations.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"backend", "kind"},
	)
	replyBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casefile_generation_reply_bytes",
			Help:    "Histogram of reply sizes.",
			Buckets: prometheus.ExponentialBuckets(256, 2, 8),
		},
		[]string{"backend", "kind"},
	)
)

// observe records one finished call.
func observe(backend, kind string, start time.Time, reply string, err error) {
	requestsTotal.WithLabelValues(backend, kind, statusLabel(err)).Inc()
	requestDuration.WithLabelValues(backend, kind).Observe(time.Since(start).Seconds())
	if err == nil {
		replyBytes.WithLabelValues(backend, kind).Observe(float64(len(reply)))
	}
}
