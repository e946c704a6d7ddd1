package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"gorm.io/gorm"
)

// Error types attached to scheduler log lines.
const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

// Reason label values. Kept to a closed set.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonDeadlock             = "deadlock"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"

	SchedulerBatchDeferredReasonLeaseHeld = "lease_held"
	SchedulerBatchDeferredReasonCooldown  = "cooldown"
)

const (
	SnapshotOutcomeBilled  = "billed"
	SnapshotOutcomeSkipped = "skipped"
	SnapshotOutcomeFailed  = "failed"
)

// SchedulerMetrics are the prometheus series scraped from /metrics for the
// billing jobs and the ledger write path. All methods accept a nil receiver.
type SchedulerMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	batchProcessed   *prometheus.CounterVec
	batchDeferred    *prometheus.CounterVec
	runLoopLag       prometheus.Histogram
	snapshotOutcomes *prometheus.CounterVec
	ledgerLockWait   prometheus.Histogram
	ledgerRetries    *prometheus.CounterVec
	suspensionSent   *prometheus.CounterVec
}

var (
	schedulerOnce    sync.Once
	schedulerMetrics *SchedulerMetrics
)

// Scheduler returns the process-wide instance, creating it with empty
// labels if SchedulerWithConfig has not run yet.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	schedulerMetrics = nil
}

// seriesFactory stamps every series with the service and env labels.
type seriesFactory struct {
	labels     prometheus.Labels
	registerer prometheus.Registerer
}

func (f seriesFactory) counter(name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "computeledger_" + name, Help: help, ConstLabels: f.labels,
	}, labels)
	f.registerer.MustRegister(c)
	return c
}

func (f seriesFactory) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "computeledger_" + name, Help: help, Buckets: buckets, ConstLabels: f.labels,
	}, labels)
	f.registerer.MustRegister(h)
	return h
}

func (f seriesFactory) single(name, help string, buckets []float64) prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "computeledger_" + name, Help: help, Buckets: buckets, ConstLabels: f.labels,
	})
	f.registerer.MustRegister(h)
	return h
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := seriesFactory{
		labels: prometheus.Labels{
			"service": orDefault(cfg.ServiceName, "computeledger"),
			"env":     orDefault(cfg.Environment, "unknown"),
		},
		registerer: registerer,
	}

	jobBuckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800}
	lagBuckets := []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
	lockBuckets := prometheus.ExponentialBuckets(0.0005, 2.5, 12)

	return &SchedulerMetrics{
		jobRuns:          f.counter("scheduler_job_runs_total", "Scheduler job runs by name.", "job"),
		jobDuration:      f.histogram("scheduler_job_duration_seconds", "Scheduler job latency.", jobBuckets, "job"),
		jobTimeouts:      f.counter("scheduler_job_timeouts_total", "Scheduler jobs that hit their deadline.", "job"),
		jobErrors:        f.counter("scheduler_job_errors_total", "Scheduler job errors by reason.", "job", "reason"),
		batchProcessed:   f.counter("scheduler_batch_processed_total", "Items handled by a job run.", "job", "resource"),
		batchDeferred:    f.counter("scheduler_batch_deferred_total", "Job batches skipped for a later run.", "job", "reason"),
		runLoopLag:       f.single("scheduler_runloop_lag_seconds", "Delay between a scheduled tick and the job start.", lagBuckets),
		snapshotOutcomes: f.counter("usage_snapshots_total", "Usage snapshot outcomes per deployment and period.", "outcome"),
		ledgerLockWait:   f.single("ledger_lock_wait_seconds", "Time spent waiting for a balance lock.", lockBuckets),
		ledgerRetries:    f.counter("ledger_apply_retries_total", "Ledger apply retries by reason.", "reason"),
		suspensionSent:   f.counter("scheduler_suspension_signals_total", "Suspension signals published by action.", "action"),
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.batchDeferred.WithLabelValues(job, reason).Inc()
	}
}

// ObserveRunLoopLag records how late a tick started. Negative lag counts
// as zero.
func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(lag, 0).Seconds())
	}
}

func (m *SchedulerMetrics) IncSnapshotOutcome(outcome string) {
	if m != nil {
		m.snapshotOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *SchedulerMetrics) ObserveLedgerLockWait(d time.Duration) {
	if m != nil {
		m.ledgerLockWait.Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncLedgerRetry(err error) {
	if m != nil {
		m.ledgerRetries.WithLabelValues(ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) IncSuspensionSignal(action string) {
	if m != nil {
		m.suspensionSent.WithLabelValues(action).Inc()
	}
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// isDBError reports failures raised by the database or gorm itself, as
// opposed to domain errors. A missing row is a domain outcome.
func isDBError(err error) bool {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false
	case dbpkg.SQLState(err) != "":
		return true
	}
	for _, target := range []error{
		gorm.ErrInvalidDB,
		gorm.ErrInvalidTransaction,
		gorm.ErrInvalidField,
		gorm.ErrInvalidData,
		gorm.ErrMissingWhereClause,
		gorm.ErrDuplicatedKey,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ClassifySchedulerErrorType buckets err for the error_type log field.
func ClassifySchedulerErrorType(err error) string {
	switch {
	case err == nil:
		return SchedulerErrorTypeUnknown
	case isDeadline(err):
		return SchedulerErrorTypeDeadlineExceeded
	case isDBError(err):
		return SchedulerErrorTypeDB
	}
	return SchedulerErrorTypeBusinessRule
}

// IsSchedulerErrorRetryable is true for deadlines and database failures;
// domain errors repeat on the next run.
func IsSchedulerErrorRetryable(err error) bool {
	return err != nil && (isDeadline(err) || isDBError(err))
}

func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if isDeadline(err) {
		return SchedulerJobReasonDeadlineExceeded
	}
	switch dbpkg.SQLState(err) {
	case "55P03":
		return SchedulerJobReasonDBLockTimeout
	case "40001":
		return SchedulerJobReasonSerializationFailure
	case "40P01":
		return SchedulerJobReasonDeadlock
	case "23505":
		return SchedulerJobReasonUniqueViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	return SchedulerJobReasonUnknown
}
