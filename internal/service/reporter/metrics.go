package reporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/mediamtx-installer/internal/service/transaction"
)

const metricsNamespace = "mediamtx_installer"

// Metrics holds the gauges describing the last run.
type Metrics struct {
	registry *prometheus.Registry

	success   prometheus.Gauge
	exitCode  prometheus.Gauge
	timestamp prometheus.Gauge
	duration  prometheus.Gauge
	verified  prometheus.Gauge
	steps     *prometheus.GaugeVec
	rollback  *prometheus.GaugeVec
	info      *prometheus.GaugeVec
}

// NewMetrics registers the run gauges on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_success",
			Help:      "Whether the last run committed (1) or not (0)",
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_exit_code",
			Help:      "Exit code of the last run",
		}),
		timestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run's transaction",
		}),
		verified: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "artifact_verified",
			Help:      "Whether the artifact digest matched the checksum manifest",
		}),
		steps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_steps",
			Help:      "Steps of the last run by status",
		}, []string{"status"}),
		rollback: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_rollback_actions",
			Help:      "Compensating actions of the last run by result",
		}, []string{"result"}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "installed_info",
			Help:      "Version and architecture of the last run",
		}, []string{"version", "arch"}),
	}

	m.registry.MustRegister(m.success, m.exitCode, m.timestamp, m.duration, m.verified, m.steps, m.rollback, m.info)

	return m
}

// Observe records o.
func (m *Metrics) Observe(o *Outcome, now time.Time) {
	j := &o.Journal

	m.success.Set(boolValue(o.Err == nil))
	m.exitCode.Set(float64(o.ExitCode()))
	m.timestamp.Set(float64(now.Unix()))
	m.verified.Set(boolValue(o.Verification.Verified()))

	if !j.Started.IsZero() {
		m.duration.Set(j.Duration().Seconds())
	}

	counts := map[string]int{"ok": 0, "failed": 0, "simulated": 0}

	for _, s := range j.Steps {
		switch {
		case s.Simulated:
			counts["simulated"]++
		case s.Err != "":
			counts["failed"]++
		default:
			counts["ok"]++
		}
	}

	for status, n := range counts {
		m.steps.WithLabelValues(status).Set(float64(n))
	}

	m.rollback.WithLabelValues("ok").Set(float64(rollbackCount(j, false)))
	m.rollback.WithLabelValues("failed").Set(float64(rollbackCount(j, true)))

	if o.Target != nil {
		m.info.WithLabelValues(o.Target.Version, o.Target.Arch).Set(1)
	}
}

// WriteFile writes the gauges in the Prometheus text format for the node exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Gatherer exposes the registry for tests and embedding.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func rollbackCount(j *transaction.Journal, failed bool) int {
	n := 0

	for _, r := range j.Rollback {
		if (r.Err != "") == failed {
			n++
		}
	}

	return n
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}

	return 0
}
