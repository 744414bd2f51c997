// Registers per-run gauges:
//
//	#activeoi_fetched_entries
//	#activeoi_raw_rows
//	#activeoi_derived_rows
//	#activeoi_run_duration_seconds
//	#activeoi_last_success_timestamp_seconds
//	#activeoi_runs_total{status}
//
// A batch job has no scrape endpoint, so the gauges are pushed to a Pushgateway
// at the end of each run when one is configured.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	appconfig "activeoi/config"
	"activeoi/logger"
)

const runComponent = "run_metrics"

// RunSummary describes one completed job invocation.
type RunSummary struct {
	RunID       string
	Status      string
	Fetched     int
	RawRows     int
	DerivedRows int
	Duration    time.Duration
	Finished    time.Time
	Succeeded   bool
}

// RunMetrics records run summaries as CloudWatch metrics and Prometheus gauges.
type RunMetrics struct {
	registry    *prometheus.Registry
	fetched     prometheus.Gauge
	rawRows     prometheus.Gauge
	derivedRows prometheus.Gauge
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	runs        *prometheus.CounterVec

	pushURL string
	pushJob string
}

func NewRunMetrics(cfg appconfig.PushgatewayConfig) *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		fetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activeoi_fetched_entries",
			Help: "Number of symbol histories returned by the last fetch",
		}),
		rawRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activeoi_raw_rows",
			Help: "Rows in the raw history table after the last run",
		}),
		derivedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activeoi_derived_rows",
			Help: "Rows in the derived active OI table after the last run",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activeoi_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "activeoi_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "activeoi_runs_total",
			Help: "Runs by final status",
		}, []string{"status"}),
		pushURL: cfg.URL,
		pushJob: cfg.Job,
	}
	if m.pushJob == "" {
		m.pushJob = "activeoi"
	}

	m.registry.MustRegister(m.fetched, m.rawRows, m.derivedRows, m.duration, m.lastSuccess, m.runs)
	return m
}

// Registry exposes the collectors for tests and ad-hoc scraping.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe emits the summary through EmitMetric and updates the gauges. When a
// Pushgateway URL is configured the gauges are pushed; a push failure is returned
// so the caller can log it, but the run outcome is unaffected.
func (m *RunMetrics) Observe(ctx context.Context, s RunSummary) error {
	log := logger.GetLogger().WithComponent(runComponent).WithRunID(s.RunID)

	EmitMetric(log, runComponent, "fetched_entries", s.Fetched, "gauge", logger.Fields{"unit": "count"})
	EmitMetric(log, runComponent, "raw_rows", s.RawRows, "gauge", logger.Fields{"unit": "count"})
	EmitMetric(log, runComponent, "derived_rows", s.DerivedRows, "gauge", logger.Fields{"unit": "count"})
	EmitMetric(log, runComponent, "run_duration", s.Duration.Seconds(), "gauge", logger.Fields{"unit": "seconds"})
	EmitMetric(log, runComponent, "runs", 1, "counter", logger.Fields{"status": s.Status})

	m.fetched.Set(float64(s.Fetched))
	m.rawRows.Set(float64(s.RawRows))
	m.derivedRows.Set(float64(s.DerivedRows))
	m.duration.Set(s.Duration.Seconds())
	if s.Succeeded {
		finished := s.Finished
		if finished.IsZero() {
			finished = timeNow()
		}
		m.lastSuccess.Set(float64(finished.Unix()))
	}
	m.runs.WithLabelValues(s.Status).Inc()

	if m.pushURL == "" {
		return nil
	}

	if err := push.New(m.pushURL, m.pushJob).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push run metrics: %w", err)
	}

	log.WithFields(logger.Fields{"url": m.pushURL, "job": m.pushJob}).Debug("pushed run metrics")
	return nil
}
