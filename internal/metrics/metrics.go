// Package metrics exposes discovery metrics for Prometheus scraping.
// Collectors live on a private registry so tests and multiple servers in one
// process never collide on the default one.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/probe"
)

// Metrics holds the collectors for scan sessions and probes
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	sessionsTotal *prometheus.CounterVec
	probesTotal   *prometheus.CounterVec
	hitsTotal     *prometheus.CounterVec
	ctFailures    prometheus.Counter

	// Gauges
	activeSessions prometheus.Gauge

	// Histograms
	probeSeconds   *prometheus.HistogramVec
	sessionSeconds *prometheus.HistogramVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bughunter_sessions_total",
			Help: "Scan sessions finished, by terminal status",
		},
		[]string{"status"},
	)

	m.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bughunter_probes_total",
			Help: "Candidates probed, by liveness outcome",
		},
		[]string{"outcome"},
	)

	m.hitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bughunter_hits_total",
			Help: "Classified hits emitted, by source and risk level",
		},
		[]string{"source", "risk"},
	)

	m.ctFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bughunter_ct_failures_total",
		Help: "Certificate transparency lookups that failed soft",
	})

	m.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bughunter_active_sessions",
		Help: "Scan sessions currently running",
	})

	m.probeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bughunter_probe_duration_seconds",
			Help:    "Time spent verifying one candidate",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"outcome"},
	)

	m.sessionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bughunter_session_duration_seconds",
			Help:    "Wall clock duration of scan sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"status"},
	)

	m.registry.MustRegister(
		m.sessionsTotal,
		m.probesTotal,
		m.hitsTotal,
		m.ctFailures,
		m.activeSessions,
		m.probeSeconds,
		m.sessionSeconds,
	)

	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// SessionStarted marks a session as running
func (m *Metrics) SessionStarted() {
	m.activeSessions.Inc()
}

// SessionFinished records the terminal status and duration of a session
func (m *Metrics) SessionFinished(status models.SessionStatus, elapsed time.Duration) {
	m.activeSessions.Dec()
	m.sessionsTotal.WithLabelValues(string(status)).Inc()
	m.sessionSeconds.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// Hit counts one emitted hit
func (m *Metrics) Hit(hit models.ClassifiedHit) {
	m.hitsTotal.WithLabelValues(string(hit.Source), string(hit.RiskLevel)).Inc()
}

// CTFailure counts a soft CT failure
func (m *Metrics) CTFailure() {
	m.ctFailures.Inc()
}

// Instrument wraps verify so every probe is timed and counted
func (m *Metrics) Instrument(verify probe.VerifyFunc) probe.VerifyFunc {
	return func(ctx context.Context, c models.Candidate) (models.ProbeResult, error) {
		start := time.Now()
		res, err := verify(ctx, c)
		outcome := probeOutcome(res, err)
		m.probesTotal.WithLabelValues(outcome).Inc()
		m.probeSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		return res, err
	}
}

func probeOutcome(res models.ProbeResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.WebLive():
		return "web_live"
	case res.DNSLive:
		return "dns_live"
	default:
		return "dead"
	}
}
