// Package observability exposes Prometheus metrics for long propagation
// runs. The scrape endpoint is optional; the engine never depends on it.
package observability

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// metricsReadHeaderTimeout guards the scrape listener against slowloris.
	metricsReadHeaderTimeout = 5 * time.Second

	// durationBucketStart is the smallest round-duration bucket in seconds.
	durationBucketStart = 0.01

	// durationBucketFactor is the exponential bucket growth factor.
	durationBucketFactor = 4

	// durationBucketCount is the number of round-duration buckets.
	durationBucketCount = 8
)

// Metrics holds the propagation run instruments backed by a private
// registry, so repeated runs in tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	Nodes         prometheus.Gauge
	RoundsTotal   prometheus.Counter
	RoundDuration prometheus.Histogram
	EstimateSum   prometheus.Gauge
}

// NewMetrics creates the instrument set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hyperanf_nodes",
			Help: "Number of nodes in the loaded graph.",
		}),
		RoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "hyperanf_rounds_total",
			Help: "Completed propagation rounds.",
		}),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "hyperanf_round_duration_seconds",
			Help: "Wall time per propagation round.",
			Buckets: prometheus.ExponentialBuckets(
				durationBucketStart, durationBucketFactor, durationBucketCount),
		}),
		EstimateSum: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hyperanf_estimate_sum",
			Help: "Sum of all node cardinality estimates in the latest round.",
		}),
	}
}

// Handler serves the scrape endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the scrape listener in the background. Listener failures are
// logged, never fatal: metrics are an observer of the run, not part of it.
func (m *Metrics) Serve(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		serveErr := server.ListenAndServe()
		if serveErr != nil && logger != nil {
			logger.Error("metrics listener stopped", "addr", addr, "error", serveErr)
		}
	}()
}
