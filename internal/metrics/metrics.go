// Package metrics exposes the driver's Prometheus instrumentation: fetch
// latency and size, authentication outcomes, and framer backpressure.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the driver.
type Collector struct {
	Registry *prometheus.Registry

	fetchDuration   *prometheus.HistogramVec
	fetchRows       *prometheus.HistogramVec
	fetchBytes      *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	authOutcomes    *prometheus.CounterVec
	connectionsLive *prometheus.GaugeVec
	frameChanDepth  *prometheus.GaugeVec
	healthProbes    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics using a custom registry.
// Safe to call multiple times (e.g., in tests or on config reload) — each
// call creates an independent registry that doesn't conflict with others.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgcolumn_fetch_duration_seconds",
				Help:    "Duration of a Fetch call, from send to ReadyForQuery",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"protocol"}, // "simple" or "extended"
		),
		fetchRows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgcolumn_fetch_rows",
				Help:    "Number of rows returned by a Fetch call",
				Buckets: prometheus.ExponentialBuckets(1, 4, 12),
			},
			[]string{"protocol"},
		),
		fetchBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgcolumn_fetch_bytes_total",
				Help: "Bytes packed into columnar output, by dtype",
			},
			[]string{"dtype"},
		),
		fetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgcolumn_fetch_errors_total",
				Help: "Fetch failures by cause",
			},
			[]string{"protocol", "cause"}, // cause: "server_error", "io", "unexpected_message", "cancelled"
		),
		authOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgcolumn_auth_outcomes_total",
				Help: "SCRAM authentication attempts by outcome",
			},
			[]string{"outcome"}, // "ok", "failed"
		),
		connectionsLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgcolumn_connections_live",
				Help: "Number of connections currently open",
			},
			[]string{"addr"},
		),
		frameChanDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgcolumn_frame_channel_depth",
				Help: "Observed depth of the framer's frame channel, a backpressure signal",
			},
			[]string{"addr"},
		),
		healthProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgcolumn_health_probes_total",
				Help: "Liveness probe results",
			},
			[]string{"result"}, // "healthy", "unhealthy"
		),
	}

	reg.MustRegister(
		c.fetchDuration,
		c.fetchRows,
		c.fetchBytes,
		c.fetchErrors,
		c.authOutcomes,
		c.connectionsLive,
		c.frameChanDepth,
		c.healthProbes,
	)

	return c
}

// FetchCompleted records a successful fetch's duration and row count.
func (c *Collector) FetchCompleted(protocol string, d time.Duration, rows int) {
	c.fetchDuration.WithLabelValues(protocol).Observe(d.Seconds())
	c.fetchRows.WithLabelValues(protocol).Observe(float64(rows))
}

// FetchBytes adds n bytes packed for the given dtype.
func (c *Collector) FetchBytes(dtype string, n int) {
	c.fetchBytes.WithLabelValues(dtype).Add(float64(n))
}

// FetchError increments the fetch error counter for protocol/cause.
func (c *Collector) FetchError(protocol, cause string) {
	c.fetchErrors.WithLabelValues(protocol, cause).Inc()
}

// AuthOutcome records a SCRAM authentication attempt's outcome.
func (c *Collector) AuthOutcome(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	c.authOutcomes.WithLabelValues(outcome).Inc()
}

// SetConnectionLive sets the live-connection gauge for addr.
func (c *Collector) SetConnectionLive(addr string, live bool) {
	val := 0.0
	if live {
		val = 1.0
	}
	c.connectionsLive.WithLabelValues(addr).Set(val)
}

// SetFrameChannelDepth records the framer's observed channel depth for addr.
func (c *Collector) SetFrameChannelDepth(addr string, depth int) {
	c.frameChanDepth.WithLabelValues(addr).Set(float64(depth))
}

// HealthProbeCompleted records a liveness probe result.
func (c *Collector) HealthProbeCompleted(healthy bool) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	c.healthProbes.WithLabelValues(result).Inc()
}
