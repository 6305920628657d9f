package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the analyzer. Collectors
// register against a private registry so the /metrics endpoint serves only
// what this process owns.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	RunCounter       *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	ParseFailures    prometheus.Counter
	RecordsLoaded    prometheus.Gauge
	AlertsBySeverity *prometheus.GaugeVec
	PatternsByType   *prometheus.GaugeVec
	DegradedRules    prometheus.Gauge

	registry *prometheus.Registry
}

var (
	instance *Metrics
	once     sync.Once
)

// New returns the process-wide metrics set. Repeated calls share one
// registration, so tests and wiring code never collide.
func New() *Metrics {
	once.Do(func() {
		registry := prometheus.NewRegistry()

		m := &Metrics{
			RequestCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "logsentinel_http_requests_total",
					Help: "HTTP requests served, by method, path and status",
				},
				[]string{"method", "path", "status"},
			),
			LatencyHistogram: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "logsentinel_http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
			RunCounter: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "logsentinel_analysis_runs_total",
					Help: "Ingestion and analysis passes, by trigger and outcome",
				},
				[]string{"trigger", "outcome"},
			),
			RunDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "logsentinel_analysis_duration_seconds",
					Help:    "Duration of full analysis passes in seconds",
					Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
				},
			),
			ParseFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "logsentinel_parse_failures_total",
					Help: "Log lines that failed to parse across all runs",
				},
			),
			RecordsLoaded: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "logsentinel_records_loaded",
					Help: "Records loaded by the last successful run",
				},
			),
			AlertsBySeverity: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "logsentinel_anomaly_alerts",
					Help: "Anomaly alerts from the last run, by severity",
				},
				[]string{"severity"},
			),
			PatternsByType: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "logsentinel_abuse_patterns",
					Help: "Abuse patterns from the last run, by type",
				},
				[]string{"pattern_type"},
			),
			DegradedRules: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "logsentinel_degraded_rules",
					Help: "Anomaly sub-rules that failed during the last run",
				},
			),
			registry: registry,
		}

		registry.MustRegister(
			m.RequestCounter,
			m.LatencyHistogram,
			m.RunCounter,
			m.RunDuration,
			m.ParseFailures,
			m.RecordsLoaded,
			m.AlertsBySeverity,
			m.PatternsByType,
			m.DegradedRules,
		)

		instance = m
	})

	return instance
}

// IncrementRequest counts one served HTTP request.
func (m *Metrics) IncrementRequest(method, path string, status int) {
	m.RequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// RecordLatency observes one request duration.
func (m *Metrics) RecordLatency(method, path string, seconds float64) {
	m.LatencyHistogram.WithLabelValues(method, path).Observe(seconds)
}

// RecordRun counts one finished analysis pass and its parse failures.
func (m *Metrics) RecordRun(trigger string, failed bool, seconds float64, failedLines int) {
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.RunCounter.WithLabelValues(trigger, outcome).Inc()
	m.RunDuration.Observe(seconds)
	if failedLines > 0 {
		m.ParseFailures.Add(float64(failedLines))
	}
}

// SetFindings replaces the last-run finding gauges. Stale labels from the
// previous run are cleared first.
func (m *Metrics) SetFindings(recordCount int, alertsBySeverity, patternsByType map[string]int, degraded int) {
	m.RecordsLoaded.Set(float64(recordCount))

	m.AlertsBySeverity.Reset()
	for severity, count := range alertsBySeverity {
		m.AlertsBySeverity.WithLabelValues(severity).Set(float64(count))
	}

	m.PatternsByType.Reset()
	for pattern, count := range patternsByType {
		m.PatternsByType.WithLabelValues(pattern).Set(float64(count))
	}

	m.DegradedRules.Set(float64(degraded))
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
