// Package metrics provides Prometheus metrics for a cleaniit run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kill modes used as the "mode" label.
const (
	ModeExecuted = "executed"
	ModeDryRun   = "dry_run"
)

// Metrics holds all Prometheus metrics for one run.
type Metrics struct {
	SessionsFetched    prometheus.Gauge
	SessionsConsidered prometheus.Gauge
	SessionsKilled     *prometheus.GaugeVec
	OldestIdleSeconds  prometheus.Gauge
	RunDuration        prometheus.Gauge
	LastRunTimestamp   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
// Gauges rather than counters: each run writes a fresh snapshot.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleaniit_sessions_fetched",
			Help: "Idle-in-transaction sessions returned by pg_stat_activity in the last run.",
		}),
		SessionsConsidered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleaniit_sessions_considered",
			Help: "Sessions older than the minimum age that were reported in the last run.",
		}),
		SessionsKilled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cleaniit_sessions_killed",
				Help: "Kill actions issued in the last run, by mode.",
			},
			[]string{"mode"},
		),
		OldestIdleSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleaniit_oldest_idle_seconds",
			Help: "Idle age of the oldest idle-in-transaction session seen in the last run.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleaniit_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cleaniit_last_run_timestamp_seconds",
			Help: "Unix time at which the last run completed.",
		}),
		registry: reg,
	}

	reg.MustRegister(m.SessionsFetched)
	reg.MustRegister(m.SessionsConsidered)
	reg.MustRegister(m.SessionsKilled)
	reg.MustRegister(m.OldestIdleSeconds)
	reg.MustRegister(m.RunDuration)
	reg.MustRegister(m.LastRunTimestamp)

	// Export both label values so dashboards see zeros.
	m.SessionsKilled.WithLabelValues(ModeExecuted)
	m.SessionsKilled.WithLabelValues(ModeDryRun)

	return m
}

// Registry exposes the underlying registry as a gatherer.
func (m *Metrics) Registry() prometheus.Gatherer {
	return m.registry
}

// SetFetched records how many sessions were fetched.
func (m *Metrics) SetFetched(n int) {
	m.SessionsFetched.Set(float64(n))
}

// SetOldestIdle records the age of the oldest session.
func (m *Metrics) SetOldestIdle(age time.Duration) {
	m.OldestIdleSeconds.Set(age.Seconds())
}

// RecordConsidered increments the considered gauge.
func (m *Metrics) RecordConsidered() {
	m.SessionsConsidered.Inc()
}

// RecordKill increments the kill gauge for the given mode.
func (m *Metrics) RecordKill(dryRun bool) {
	mode := ModeExecuted
	if dryRun {
		mode = ModeDryRun
	}
	m.SessionsKilled.WithLabelValues(mode).Inc()
}

// Finish stamps the run duration and completion time.
func (m *Metrics) Finish(started, finished time.Time) {
	m.RunDuration.Set(finished.Sub(started).Seconds())
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile atomically writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
