package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/computeledger/internal/clock"
	"github.com/smallbiznis/computeledger/internal/config"
	"github.com/smallbiznis/computeledger/internal/lease"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	suspensiondomain "github.com/smallbiznis/computeledger/internal/suspension/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobName = "suspension_sweep"

// A sweep runs under this lease so replicas and manual runs never publish
// the same notice twice. The TTL outlives the scheduler's sweep timeout.
const (
	SweepLeaseKey = "suspension_sweep"
	SweepLeaseTTL = 5 * time.Minute
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Ledger     ledgerdomain.Service
	Repo       suspensiondomain.Repository
	Publisher  suspensiondomain.Publisher
	Lease      lease.Locker
	Billing    *config.BillingConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type TenantFailure struct {
	TenantID string
	Err      error
}

type SweepReport struct {
	Suspended []string
	Resumed   []string
	Deferred  []string
	Failed    []TenantFailure
	// LeaseHeld is set when another sweep was running and this one did
	// nothing.
	LeaseHeld bool
}

type Enforcer struct {
	log          *zap.Logger
	clock        clock.Clock
	ledger       ledgerdomain.Service
	repo         suspensiondomain.Repository
	publisher    suspensiondomain.Publisher
	lease        lease.Locker
	billing      *config.BillingConfigHolder
	obsMetrics   *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func NewEnforcer(p Params) *Enforcer {
	return &Enforcer{
		log:          p.Log.Named("suspension.enforcer"),
		clock:        p.Clock,
		ledger:       p.Ledger,
		repo:         p.Repo,
		publisher:    p.Publisher,
		lease:        p.Lease,
		billing:      p.Billing,
		obsMetrics:   p.ObsMetrics,
		schedMetrics: obsmetrics.Scheduler(),
	}
}

// RunOnce suspends tenants whose balance fell below the threshold and
// resumes suspended tenants that recovered. A failed publish leaves the
// tenant's row untouched so the next sweep retries it.
func (e *Enforcer) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	release, err := lease.Acquire(ctx, e.lease, SweepLeaseKey, SweepLeaseTTL)
	if errors.Is(err, lease.ErrLeaseHeld) {
		report.LeaseHeld = true
		e.schedMetrics.IncBatchDeferred(jobName, obsmetrics.SchedulerBatchDeferredReasonLeaseHeld)
		obslogger.WithContext(ctx, e.log).Info("suspension sweep held by another worker")
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("acquire sweep lease: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.log.Warn("release sweep lease failed", zap.Error(err))
		}
	}()

	cfg := e.billing.Get().Suspension
	threshold := cfg.ThresholdAmount()

	depleted, err := e.ledger.ListBalancesBelow(ctx, threshold)
	if err != nil {
		return report, fmt.Errorf("list depleted balances: %w", err)
	}
	for _, balance := range depleted {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := e.suspend(ctx, balance, cfg.NotifyCooldown)
		e.collect(&report, balance.TenantID, res, err)
	}

	suspended, err := e.repo.ListSuspended(ctx)
	if err != nil {
		return report, fmt.Errorf("list suspended tenants: %w", err)
	}
	for _, row := range suspended {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := e.resume(ctx, row, threshold)
		e.collect(&report, row.TenantID, res, err)
	}

	e.schedMetrics.AddBatchProcessed(jobName, "tenants", len(report.Suspended)+len(report.Resumed))
	return report, nil
}

type result int

const (
	resultNone result = iota
	resultSuspended
	resultResumed
	resultDeferred
)

func (e *Enforcer) collect(report *SweepReport, tenantID string, res result, err error) {
	if err != nil {
		report.Failed = append(report.Failed, TenantFailure{TenantID: tenantID, Err: err})
		e.log.Warn("suspension sweep tenant failed",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return
	}
	switch res {
	case resultSuspended:
		report.Suspended = append(report.Suspended, tenantID)
	case resultResumed:
		report.Resumed = append(report.Resumed, tenantID)
	case resultDeferred:
		report.Deferred = append(report.Deferred, tenantID)
		e.schedMetrics.IncBatchDeferred(jobName, obsmetrics.SchedulerBatchDeferredReasonCooldown)
	}
}

func (e *Enforcer) suspend(ctx context.Context, balance ledgerdomain.Balance, cooldown time.Duration) (result, error) {
	row, err := e.repo.Find(ctx, balance.TenantID)
	if err != nil {
		return resultNone, err
	}
	if row != nil && row.Status == suspensiondomain.StatusSuspended {
		return resultNone, nil
	}
	now := e.clock.Now().UTC()
	if row.NotifiedWithin(now, cooldown) {
		return resultDeferred, nil
	}

	signal := e.newSignal(suspensiondomain.ActionSuspend, balance, now)
	if err := e.publish(ctx, signal); err != nil {
		return resultNone, err
	}

	next := suspensiondomain.TenantSuspension{
		TenantID:            balance.TenantID,
		Status:              suspensiondomain.StatusSuspended,
		Reason:              signal.Reason,
		BalanceAtSuspension: balance.Amount,
		SuspendedAt:         &now,
		LastNotifiedAt:      &now,
		UpdatedAt:           now,
	}
	if row != nil {
		next.ResumedAt = row.ResumedAt
	}
	if err := e.repo.Upsert(ctx, &next); err != nil {
		return resultNone, fmt.Errorf("record suspension: %w", err)
	}
	return resultSuspended, nil
}

func (e *Enforcer) resume(ctx context.Context, row suspensiondomain.TenantSuspension, threshold decimal.Decimal) (result, error) {
	balance, err := e.ledger.GetBalanceByTenant(ctx, row.TenantID)
	if errors.Is(err, ledgerdomain.ErrBalanceNotFound) {
		return resultNone, nil
	}
	if err != nil {
		return resultNone, err
	}
	if balance.Amount.LessThan(threshold) {
		return resultNone, nil
	}

	now := e.clock.Now().UTC()
	signal := e.newSignal(suspensiondomain.ActionResume, *balance, now)
	if err := e.publish(ctx, signal); err != nil {
		return resultNone, err
	}

	row.Status = suspensiondomain.StatusActive
	row.Reason = signal.Reason
	row.ResumedAt = &now
	row.LastNotifiedAt = &now
	row.UpdatedAt = now
	if err := e.repo.Upsert(ctx, &row); err != nil {
		return resultNone, fmt.Errorf("record resume: %w", err)
	}
	return resultResumed, nil
}

func (e *Enforcer) newSignal(action suspensiondomain.Action, balance ledgerdomain.Balance, now time.Time) suspensiondomain.Signal {
	reason := suspensiondomain.ReasonInsufficientBalance
	if action == suspensiondomain.ActionResume {
		reason = "balance_recovered"
	}
	return suspensiondomain.Signal{
		ID:         ulid.Make().String(),
		Action:     action,
		TenantID:   balance.TenantID,
		Reason:     reason,
		Balance:    balance.Amount.StringFixed(2),
		Currency:   balance.Currency,
		OccurredAt: now,
	}
}

func (e *Enforcer) publish(ctx context.Context, signal suspensiondomain.Signal) error {
	ctx = obscontext.WithTenantID(ctx, signal.TenantID)
	log := obslogger.WithContext(ctx, e.log).With(
		zap.String("action", string(signal.Action)),
		zap.String("signal_id", signal.ID),
	)
	if err := e.publisher.Publish(ctx, signal); err != nil {
		log.Warn("publish billing signal failed", zap.Error(err))
		return fmt.Errorf("publish %s signal: %w", signal.Action, err)
	}
	e.schedMetrics.IncSuspensionSignal(string(signal.Action))
	e.obsMetrics.RecordSuspensionSignal(ctx, string(signal.Action))
	log.Info("billing signal published", zap.String("balance", signal.Balance))
	return nil
}
