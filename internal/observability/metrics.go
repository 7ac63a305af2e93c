// Package observability exposes the Initializer's phase timings, retry
// counts, and migration throughput as Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the Initializer's Prometheus metrics.
type Collector struct {
	phaseDuration   *prometheus.HistogramVec
	phaseAttempts   *prometheus.CounterVec
	phaseOutcomes   *prometheus.CounterVec
	migrationChunks *prometheus.CounterVec
	recordsMigrated *prometheus.CounterVec
	inflightModels  prometheus.Gauge
}

// New builds and registers a Collector against reg. Passing a fresh
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// repeated construction in tests from panicking on duplicate registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bucketinit_phase_duration_seconds",
				Help:    "Wall-clock time spent in each pipeline phase, including retries.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		phaseAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bucketinit_phase_attempts_total",
				Help: "Backoff Runner attempts per phase, including retried ones.",
			},
			[]string{"phase"},
		),
		phaseOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bucketinit_phase_outcomes_total",
				Help: "Terminal outcome per phase.",
			},
			[]string{"phase", "outcome"},
		),
		migrationChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bucketinit_migration_chunks_total",
				Help: "Chunk loop iterations per model.",
			},
			[]string{"model"},
		),
		recordsMigrated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bucketinit_records_migrated_total",
				Help: "Records written by a migration batch, per model.",
			},
			[]string{"model"},
		),
		inflightModels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bucketinit_migration_inflight_models",
				Help: "Number of models currently mid-migration.",
			},
		),
	}

	reg.MustRegister(
		c.phaseDuration,
		c.phaseAttempts,
		c.phaseOutcomes,
		c.migrationChunks,
		c.recordsMigrated,
		c.inflightModels,
	)
	return c
}

// ObservePhase records the duration a phase (including its retries) took to
// reach a terminal outcome ("done", "error").
func (c *Collector) ObservePhase(phase string, d time.Duration, outcome string) {
	c.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	c.phaseOutcomes.WithLabelValues(phase, outcome).Inc()
}

// IncAttempt records one Backoff Runner attempt for phase.
func (c *Collector) IncAttempt(phase string) {
	c.phaseAttempts.WithLabelValues(phase).Inc()
}

// IncMigrationChunk records one chunk loop iteration for model.
func (c *Collector) IncMigrationChunk(model string) {
	c.migrationChunks.WithLabelValues(model).Inc()
}

// AddRecordsMigrated records n records written in one batch for model.
func (c *Collector) AddRecordsMigrated(model string, n int) {
	if n <= 0 {
		return
	}
	c.recordsMigrated.WithLabelValues(model).Add(float64(n))
}

// SetInflightModels reports how many migration workers are currently active.
func (c *Collector) SetInflightModels(n int) {
	c.inflightModels.Set(float64(n))
}

// Handler returns the HTTP handler to mount at /metrics. It is a method
// rather than a package-level promhttp.Handler() call so a caller using a
// non-default registry gets metrics scraped from the right place.
func (c *Collector) Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
