package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"canceled":       {context.Canceled, SchedulerJobReasonDeadlineExceeded},
		"lock timeout":   {&pgconn.PgError{Code: "55P03"}, SchedulerJobReasonDBLockTimeout},
		"wrapped 40001":  {fmt.Errorf("apply usage_charge: %w", &pgconn.PgError{Code: "40001"}), SchedulerJobReasonSerializationFailure},
		"deadlock":       {&pgconn.PgError{Code: "40P01"}, SchedulerJobReasonDeadlock},
		"pg unique":      {&pgconn.PgError{Code: "23505"}, SchedulerJobReasonUniqueViolation},
		"gorm unique":    {gorm.ErrDuplicatedKey, SchedulerJobReasonUniqueViolation},
		"domain error":   {errors.New("insufficient_funds"), SchedulerJobReasonUnknown},
		"nil is unknown": {nil, SchedulerJobReasonUnknown},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	assert.Equal(t, SchedulerErrorTypeDeadlineExceeded, ClassifySchedulerErrorType(context.DeadlineExceeded))
	assert.Equal(t, SchedulerErrorTypeDB, ClassifySchedulerErrorType(&pgconn.PgError{Code: "40P01"}))
	assert.Equal(t, SchedulerErrorTypeBusinessRule, ClassifySchedulerErrorType(gorm.ErrRecordNotFound))

	assert.True(t, IsSchedulerErrorRetryable(gorm.ErrInvalidTransaction))
	assert.False(t, IsSchedulerErrorRetryable(errors.New("preset not found")))
	assert.False(t, IsSchedulerErrorRetryable(nil))
}

func TestSchedulerSeriesCarryServiceLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSchedulerMetrics(registry, Config{ServiceName: "computeledger", Environment: "test"})

	m.AddBatchProcessed("usage_snapshot", "deployments", 3)
	m.AddBatchProcessed("usage_snapshot", "deployments", 0)
	m.IncSnapshotOutcome(SnapshotOutcomeBilled)
	m.IncSnapshotOutcome(SnapshotOutcomeBilled)
	m.IncSuspensionSignal("suspend")
	m.IncLedgerRetry(&pgconn.PgError{Code: "40001"})
	m.ObserveLedgerLockWait(3 * time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchProcessed.WithLabelValues("usage_snapshot", "deployments")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.snapshotOutcomes.WithLabelValues(SnapshotOutcomeBilled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suspensionSent.WithLabelValues("suspend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerRetries.WithLabelValues(SchedulerJobReasonSerializationFailure)))

	families, err := registry.Gather()
	assert.NoError(t, err)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			assert.Equal(t, "test", labels["env"], family.GetName())
			assert.Equal(t, "computeledger", labels["service"], family.GetName())
		}
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	assert.NotPanics(t, func() {
		m.IncJobRun("usage_snapshot")
		m.IncJobError("usage_snapshot", errors.New("boom"))
		m.IncSnapshotOutcome(SnapshotOutcomeSkipped)
		m.ObserveRunLoopLag(-time.Second)
		m.ObserveLedgerLockWait(time.Millisecond)
	})
}
