// Package metrics exposes scan results as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certwatch-app/cw-certcheck/internal/types"
)

const (
	namespace = "certwatch"
	subsystem = "certcheck"
)

// Run results
const (
	RunSuccess  = "success"
	RunCanceled = "canceled"
	RunFailed   = "failed"
)

// Metrics holds the checker's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// Certificate metrics

	// DaysUntilExpiry tracks days until each certificate expires
	DaysUntilExpiry *prometheus.GaugeVec
	// ExpiryTimestamp tracks certificate expiry as Unix timestamp
	ExpiryTimestamp *prometheus.GaugeVec
	// TargetStatus is 1 for the current status of each target
	TargetStatus *prometheus.GaugeVec

	// Scan metrics

	// ScanFailures counts failed inspections by kind
	ScanFailures *prometheus.CounterVec
	// RunsTotal counts runs by result
	RunsTotal *prometheus.CounterVec
	// RunDuration tracks run duration
	RunDuration prometheus.Histogram
	// TargetsConfigured tracks the number of targets per run
	TargetsConfigured prometheus.Gauge

	// AgentInfo provides checker metadata
	AgentInfo *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		DaysUntilExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "certificate_days_until_expiry",
			Help:      "Days until certificate expires",
		}, []string{"host", "port", "display_name"}),

		ExpiryTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "certificate_expiry_timestamp_seconds",
			Help:      "Unix timestamp of certificate expiry",
		}, []string{"host", "port", "display_name"}),

		TargetStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "target_status",
			Help:      "Current verdict of each target (1 for the current status, 0 otherwise)",
		}, []string{"host", "port", "status"}),

		ScanFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scan_failures_total",
			Help:      "Total number of failed inspections by failure kind",
		}, []string{"kind"}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Total number of scan runs",
		}, []string{"result"}),

		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Duration of scan runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		TargetsConfigured: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "targets_configured",
			Help:      "Number of targets scanned per run",
		}),

		AgentInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "agent_info",
			Help:      "Checker metadata",
		}, []string{"version", "name"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.DaysUntilExpiry,
		m.ExpiryTimestamp,
		m.TargetStatus,
		m.ScanFailures,
		m.RunsTotal,
		m.RunDuration,
		m.TargetsConfigured,
		m.AgentInfo,
	)

	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetAgentInfo publishes checker metadata
func (m *Metrics) SetAgentInfo(version, name string) {
	m.AgentInfo.Reset()
	m.AgentInfo.WithLabelValues(version, name).Set(1)
}

// ObserveReport updates all per-target gauges from a completed report.
// Targets absent from the report are dropped.
func (m *Metrics) ObserveReport(report *types.Report) {
	m.DaysUntilExpiry.Reset()
	m.ExpiryTimestamp.Reset()
	m.TargetStatus.Reset()

	for i := range report.Results {
		r := &report.Results[i]
		port := strconv.Itoa(r.Target.Port)

		for _, s := range types.Statuses {
			value := 0.0
			if s == r.Verdict.Status {
				value = 1
			}
			m.TargetStatus.WithLabelValues(r.Target.Host, port, string(s)).Set(value)
		}

		if cert := r.Outcome.Certificate; cert != nil {
			m.DaysUntilExpiry.WithLabelValues(r.Target.Host, port, r.Target.DisplayName).
				Set(float64(r.Verdict.DaysRemaining))
			m.ExpiryTimestamp.WithLabelValues(r.Target.Host, port, r.Target.DisplayName).
				Set(float64(cert.NotAfter.Unix()))
		}

		if f := r.Outcome.Failure; f != nil {
			m.ScanFailures.WithLabelValues(string(f.Kind)).Inc()
		}
	}

	m.TargetsConfigured.Set(float64(len(report.Results)))
	m.RunDuration.Observe(report.Duration().Seconds())
	m.RunsTotal.WithLabelValues(RunSuccess).Inc()
}

// ObserveRunError counts a run that produced no report
func (m *Metrics) ObserveRunError(canceled bool) {
	if canceled {
		m.RunsTotal.WithLabelValues(RunCanceled).Inc()
		return
	}
	m.RunsTotal.WithLabelValues(RunFailed).Inc()
}
