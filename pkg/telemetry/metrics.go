package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for a RelayGrid node. All record
// methods are safe on a nil receiver and on a disabled instance, so callers
// never guard their metric calls.
type Metrics struct {
	config MetricsConfig

	// Registry metrics
	registrations  *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	failureReports prometheus.Counter
	circuitOpen    prometheus.Counter
	entriesTotal   prometheus.Gauge

	// Cross-node metrics
	remoteCalls        *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
	remoteCacheLookups *prometheus.CounterVec
	peersConnected     prometheus.Gauge
	zoneViolations     prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Total number of registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of resolutions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		failureReports: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failure_reports_total",
				Help:      "Total number of handler failures reported",
			},
		),
		circuitOpen: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_open_rejections_total",
				Help:      "Total number of stable resolutions rejected by an open circuit",
			},
		),
		entriesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "entries",
				Help:      "Current number of registered entries",
			},
		),
		remoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of remote invocations by outcome",
			},
			[]string{"outcome"},
		),
		remoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Duration of remote invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		remoteCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_cache_lookups_total",
				Help:      "Total number of remote cache lookups by result",
			},
			[]string{"result"},
		),
		peersConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "peers_connected",
				Help:      "Current number of peers in the discovery group",
			},
		),
		zoneViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "zone_violations_total",
				Help:      "Total number of cross-zone requests rejected by the zone directory",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.registrations,
		m.resolutions,
		m.failureReports,
		m.circuitOpen,
		m.entriesTotal,
		m.remoteCalls,
		m.remoteCallDuration,
		m.remoteCacheLookups,
		m.peersConnected,
		m.zoneViolations,
	)

	return m, nil
}

// Registry Metrics

// RecordRegistration increments the registration counter for an outcome
// ("ok" or an error code).
func (m *Metrics) RecordRegistration(outcome string) {
	if m == nil || m.registrations == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordResolution increments the resolution counter for a source
// (snapshot, store, remote) and outcome.
func (m *Metrics) RecordResolution(source, outcome string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(source, outcome).Inc()
}

// RecordFailureReport increments the failure report counter.
func (m *Metrics) RecordFailureReport() {
	if m == nil || m.failureReports == nil {
		return
	}
	m.failureReports.Inc()
}

// RecordCircuitOpen increments the open-circuit rejection counter.
func (m *Metrics) RecordCircuitOpen() {
	if m == nil || m.circuitOpen == nil {
		return
	}
	m.circuitOpen.Inc()
}

// SetEntryCount sets the current number of registered entries.
func (m *Metrics) SetEntryCount(count float64) {
	if m == nil || m.entriesTotal == nil {
		return
	}
	m.entriesTotal.Set(count)
}

// Cross-node Metrics

// RecordRemoteCall records a remote invocation with its duration.
func (m *Metrics) RecordRemoteCall(outcome string, duration time.Duration) {
	if m == nil || m.remoteCalls == nil {
		return
	}
	m.remoteCalls.WithLabelValues(outcome).Inc()
	m.remoteCallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRemoteCacheLookup records a remote cache hit or miss.
func (m *Metrics) RecordRemoteCacheLookup(hit bool) {
	if m == nil || m.remoteCacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.remoteCacheLookups.WithLabelValues(result).Inc()
}

// SetPeersConnected sets the current size of the peer group, excluding self.
func (m *Metrics) SetPeersConnected(count float64) {
	if m == nil || m.peersConnected == nil {
		return
	}
	m.peersConnected.Set(count)
}

// RecordZoneViolation increments the zone violation counter.
func (m *Metrics) RecordZoneViolation() {
	if m == nil || m.zoneViolations == nil {
		return
	}
	m.zoneViolations.Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
