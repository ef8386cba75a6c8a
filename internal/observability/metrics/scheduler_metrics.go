package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/tenantguard/pkg/db"
	"gorm.io/gorm"
)

// Job error reasons. Kept low-cardinality for the errors counter.
const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonDB                   = "db"
	JobReasonUnknown              = "unknown"
)

// Job error types used in log lines.
const (
	JobErrorTypeTimeout  = "timeout"
	JobErrorTypeDB       = "db"
	JobErrorTypeBusiness = "business_rule"
)

type jobErrorRule struct {
	reason  string
	errType string
	match   func(error) bool
}

// First match wins.
var jobErrorRules = []jobErrorRule{
	{JobReasonDeadlineExceeded, JobErrorTypeTimeout, func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	}},
	{JobReasonDBLockTimeout, JobErrorTypeDB, db.IsLockNotAvailable},
	{JobReasonSerializationFailure, JobErrorTypeDB, db.IsSerializationFailure},
	{JobReasonUniqueViolation, JobErrorTypeDB, db.IsDuplicateKeyErr},
	{JobReasonDB, JobErrorTypeDB, func(err error) bool {
		for _, target := range []error{
			gorm.ErrInvalidDB,
			gorm.ErrInvalidTransaction,
			gorm.ErrInvalidField,
			gorm.ErrInvalidData,
			gorm.ErrInvalidValue,
			gorm.ErrMissingWhereClause,
		} {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}},
}

// ClassifyJobError maps err to a metrics reason and a log error type.
func ClassifyJobError(err error) (reason, errType string) {
	for _, rule := range jobErrorRules {
		if err != nil && rule.match(err) {
			return rule.reason, rule.errType
		}
	}
	return JobReasonUnknown, JobErrorTypeBusiness
}

// SchedulerMetrics covers periodic job health and per-run item outcomes.
type SchedulerMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	timeouts *prometheus.CounterVec
	errors   *prometheus.CounterVec
	items    *prometheus.CounterVec
}

var (
	schedulerOnce    sync.Once
	schedulerMetrics *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics, registering them on
// first use.
func Scheduler(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerMetrics = NewSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func NewSchedulerMetrics(reg prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tenantguard_scheduler_" + name,
			Help:        help,
			ConstLabels: labels,
		}, vars)
	}

	m := &SchedulerMetrics{
		runs:     counter("job_runs_total", "Scheduler job runs.", "job"),
		timeouts: counter("job_timeouts_total", "Scheduler job runs that hit their deadline.", "job"),
		errors:   counter("job_errors_total", "Failed scheduler job runs by reason.", "job", "reason"),
		items:    counter("items_total", "Items handled by scheduler jobs by outcome.", "job", "resource", "outcome"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tenantguard_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			ConstLabels: labels,
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.timeouts, m.errors, m.items)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	reason, _ := ClassifyJobError(err)
	m.errors.WithLabelValues(job, reason).Inc()
}

// AddItems counts n items of resource that ended a run with outcome, e.g.
// ("enforcement_sweep", "project", "suspended").
func (m *SchedulerMetrics) AddItems(job, resource, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.items.WithLabelValues(job, resource, outcome).Add(float64(n))
}
