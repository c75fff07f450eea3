package metrics

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/lookerhealth/agent/internal/report"
	"github.com/obsidianstack/lookerhealth/agent/internal/security"
)

const namespace = "lookerhealth"

// Artifact states used as the "state" label.
const (
	StateTotal        = "total"
	StateHealthy      = "healthy"
	StateUnhealthy    = "unhealthy"
	StateStale        = "stale"
	StateInconclusive = "inconclusive"
)

// Run results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	artifacts     *prometheus.GaugeVec
	errorClusters *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	runDuration   prometheus.Gauge
	runs          *prometheus.CounterVec
	certExpiry    prometheus.Gauge
	certStatus    *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		artifacts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts",
			Help:      "Monitored artifacts by kind and classification in the latest run",
		}, []string{"kind", "state"}),
		errorClusters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unhealthy_error_clusters",
			Help:      "Error clusters of each unhealthy artifact in the latest run",
		}, []string{"kind", "id"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last successful run",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last successful run",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Report runs by result",
		}, []string{"result"}),
		certExpiry: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "looker_cert_expiry_timestamp_seconds",
			Help:      "Unix timestamp at which the Looker host certificate expires",
		}),
		certStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "looker_cert_status",
			Help:      "1 for the current state of the Looker host certificate, 0 for the others",
		}, []string{"status"}),
	}
	m.reg.MustRegister(m.artifacts, m.errorClusters, m.lastRun, m.runDuration, m.runs,
		m.certExpiry, m.certStatus)
	return m
}

// Observe records a successful run.
func (m *Metrics) Observe(rep *report.Report, dur time.Duration) {
	m.errorClusters.Reset()
	for _, kr := range rep.Kinds() {
		kind := string(kr.Kind)
		m.artifacts.WithLabelValues(kind, StateTotal).Set(float64(kr.Total))
		m.artifacts.WithLabelValues(kind, StateHealthy).Set(float64(kr.Healthy))
		m.artifacts.WithLabelValues(kind, StateUnhealthy).Set(float64(len(kr.Unhealthy)))
		m.artifacts.WithLabelValues(kind, StateStale).Set(float64(len(kr.Stale)))
		m.artifacts.WithLabelValues(kind, StateInconclusive).Set(float64(len(kr.Inconclusive)))
		for _, u := range kr.Unhealthy {
			m.errorClusters.WithLabelValues(kind, u.ID).Set(float64(u.Clusters))
		}
	}
	m.lastRun.Set(float64(rep.GeneratedAt.Unix()))
	m.runDuration.Set(dur.Seconds())
	m.runs.WithLabelValues(ResultSuccess).Inc()
}

// RunFailed records a run that produced no report.
func (m *Metrics) RunFailed() {
	m.runs.WithLabelValues(ResultFailure).Inc()
}

// ObserveCert records the latest certificate check. A nil status (plain HTTP)
// records nothing.
func (m *Metrics) ObserveCert(cs *security.CertStatus) {
	if cs == nil {
		return
	}
	for _, st := range []string{
		security.StatusValid,
		security.StatusExpiring,
		security.StatusExpired,
		security.StatusUnreachable,
	} {
		v := 0.0
		if st == cs.Status {
			v = 1
		}
		m.certStatus.WithLabelValues(st).Set(v)
	}
	if !cs.NotAfter.IsZero() {
		m.certExpiry.Set(float64(cs.NotAfter.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path in the text format. The file is
// replaced atomically so a concurrent collector never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	mfs, err := m.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".lookerhealth-*.prom")
	if err != nil {
		return fmt.Errorf("metrics: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, mfs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: rename textfile: %w", err)
	}
	return nil
}

func encode(w io.Writer, mfs []*dto.MetricFamily) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
