package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	mismatches prometheus.Counter
	expired    prometheus.Counter
	notified   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddStockMismatches counts stocks whose ledger disagrees with the on-hand quantity.
func (m *Metrics) AddStockMismatches(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.mismatches.Add(float64(count))
}

// AddExpiredBatches counts batches moved to EXPIRED.
func (m *Metrics) AddExpiredBatches(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}

// ObserveBroadcast counts published notifications by event type and outcome.
func (m *Metrics) ObserveBroadcast(eventType string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.notified.WithLabelValues(eventType, status).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_stock_ledger_mismatches_total",
		Help: "Stocks whose latest history entry disagrees with the stored quantity.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_batches_expired_total",
		Help: "Batches marked expired by the integrity job.",
	})
	notified := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_notifications_total",
		Help: "Notifications published to subscribers by event type and status.",
	}, []string{"event", "status"})
	registerer.MustRegister(runs, failures, duration, mismatches, expired, notified)
	return &Metrics{runs: runs, failures: failures, duration: duration, mismatches: mismatches, expired: expired, notified: notified}
}
