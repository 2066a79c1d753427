// Package metrics exposes the Prometheus collectors used by the billing
// services, the background worker and the HTTP layer.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ensure outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the billing collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ensures   *prometheus.CounterVec
	payments  *prometheus.CounterVec
	reminders *prometheus.CounterVec
	retries   prometheus.Counter
	jobRuns   *prometheus.CounterVec
	jobTime   *prometheus.HistogramVec
	requests  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors against registerer. A nil registerer
// selects the default Prometheus registerer, registered at most once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = build(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return build(registerer)
}

func build(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ensures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velaa_billing_ensure_total",
			Help: "Monthly invoice ensure calls partitioned by outcome.",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velaa_billing_payments_total",
			Help: "Payments recorded partitioned by method and state.",
		}, []string{"method", "state"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velaa_billing_reminders_total",
			Help: "Reminders recorded partitioned by channel and status.",
		}, []string{"type", "status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "velaa_billing_save_conflicts_total",
			Help: "Invoice saves that lost an optimistic concurrency race.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velaa_jobs_total",
			Help: "Background job executions partitioned by task type and status.",
		}, []string{"job", "status"}),
		jobTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "velaa_job_duration_seconds",
			Help:    "Duration in seconds of background job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velaa_http_requests_total",
			Help: "HTTP requests partitioned by route, method and status code.",
		}, []string{"route", "method", "code"}),
	}
	registerer.MustRegister(m.ensures, m.payments, m.reminders, m.retries, m.jobRuns, m.jobTime, m.requests)
	return m
}

func (m *Metrics) Ensure(outcome string) {
	if m == nil {
		return
	}
	m.ensures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Payment(method, state string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, state).Inc()
}

func (m *Metrics) Reminder(typ, status string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(typ, status).Inc()
}

func (m *Metrics) SaveConflict() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Request(route, method, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, code).Inc()
}

// Tracker times a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts a tracker for job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and returns err untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.jobRuns.WithLabelValues(t.job, status).Inc()
	t.metrics.jobTime.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}
