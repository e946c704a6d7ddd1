package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	billingrecorddomain "github.com/smallbiznis/computeledger/internal/billingrecord/domain"
	"github.com/smallbiznis/computeledger/internal/clock"
	deploymentdomain "github.com/smallbiznis/computeledger/internal/deployment/domain"
	"github.com/smallbiznis/computeledger/internal/lease"
	ledgerdomain "github.com/smallbiznis/computeledger/internal/ledger/domain"
	obslogger "github.com/smallbiznis/computeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/computeledger/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const jobName = "usage_snapshot"

type outcome int

const (
	outcomeBilled outcome = iota
	outcomeSkipped
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Catalog     pricingdomain.Catalog
	Deployments deploymentdomain.Repository
	Records     billingrecorddomain.Repository
	Ledger      ledgerdomain.Service
	Lease       lease.Locker
	Config      Config              `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Worker struct {
	log          *zap.Logger
	clock        clock.Clock
	genID        *snowflake.Node
	catalog      pricingdomain.Catalog
	deployments  deploymentdomain.Repository
	records      billingrecorddomain.Repository
	ledger       ledgerdomain.Service
	lease        lease.Locker
	cfg          Config
	obsMetrics   *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:          p.Log.Named("usage.snapshot"),
		clock:        p.Clock,
		genID:        p.GenID,
		catalog:      p.Catalog,
		deployments:  p.Deployments,
		records:      p.Records,
		ledger:       p.Ledger,
		lease:        p.Lease,
		cfg:          p.Config.withDefaults(),
		obsMetrics:   p.ObsMetrics,
		schedMetrics: obsmetrics.Scheduler(),
	}
}

// RunOnce bills every closed period inside the lookback window. The error
// only reports run-level failures; deployment failures are in the reports.
func (w *Worker) RunOnce(ctx context.Context) ([]RunReport, error) {
	periods := ClosedPeriods(w.clock.Now(), w.cfg.Period, w.cfg.Lookback)
	reports := make([]RunReport, 0, len(periods))

	var runErr error
	for _, period := range periods {
		if ctx.Err() != nil {
			return reports, errors.Join(runErr, ctx.Err())
		}
		report, err := w.RunPeriod(ctx, period)
		if err != nil {
			runErr = errors.Join(runErr, err)
		}
		reports = append(reports, report)
	}
	return reports, runErr
}

// RunPeriod writes the billing records of one period under the period lease.
func (w *Worker) RunPeriod(ctx context.Context, period Period) (RunReport, error) {
	report := RunReport{Period: period}
	log := obslogger.WithContext(ctx, w.log).With(
		zap.Time("period_start", period.Start),
		zap.Time("period_end", period.End),
	)

	release, err := lease.Acquire(ctx, w.lease, period.LeaseKey(), w.cfg.LeaseTTL)
	if errors.Is(err, lease.ErrLeaseHeld) {
		report.LeaseHeld = true
		w.schedMetrics.IncBatchDeferred(jobName, obsmetrics.SchedulerBatchDeferredReasonLeaseHeld)
		log.Info("snapshot period held by another worker")
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("acquire snapshot lease %s: %w", period.LeaseKey(), err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release snapshot lease failed", zap.Error(err))
		}
	}()

	deployments, err := w.deployments.ListBillable(ctx, period.Start, period.End)
	if err != nil {
		return report, fmt.Errorf("list billable deployments: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(w.cfg.Concurrency)
	for _, d := range deployments {
		g.Go(func() error {
			result, err := w.snapshotDeployment(ctx, d, period)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, DeploymentFailure{
					DeploymentID: d.ID,
					TenantID:     d.TenantID,
					Err:          err,
				})
				w.schedMetrics.IncSnapshotOutcome(obsmetrics.SnapshotOutcomeFailed)
				log.Warn("snapshot deployment failed",
					zap.String("deployment_id", d.ID),
					zap.String("tenant_id", d.TenantID),
					zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
					zap.Error(err),
				)
			case result == outcomeSkipped:
				report.Skipped = append(report.Skipped, d.ID)
				w.schedMetrics.IncSnapshotOutcome(obsmetrics.SnapshotOutcomeSkipped)
			default:
				report.Billed = append(report.Billed, d.ID)
				w.schedMetrics.IncSnapshotOutcome(obsmetrics.SnapshotOutcomeBilled)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.sort()
	w.schedMetrics.AddBatchProcessed(jobName, "deployments", len(report.Billed))
	log.Info("snapshot period finished",
		zap.Int("deployments", len(deployments)),
		zap.Int("billed", len(report.Billed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (w *Worker) snapshotDeployment(parent context.Context, d deploymentdomain.Deployment, period Period) (outcome, error) {
	ctx, cancel := context.WithTimeout(parent, w.cfg.DeploymentTimeout)
	defer cancel()

	exists, err := w.records.Exists(ctx, d.ID, period.Start)
	if err != nil {
		return 0, fmt.Errorf("check existing record: %w", err)
	}
	if exists {
		return outcomeSkipped, nil
	}

	record, err := w.buildRecord(ctx, d, period)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return outcomeSkipped, nil
	}

	if record.TotalCost.IsZero() {
		err := w.records.Insert(ctx, nil, record)
		if errors.Is(err, billingrecorddomain.ErrSnapshotAlreadyApplied) {
			return outcomeSkipped, nil
		}
		if err != nil {
			return 0, fmt.Errorf("insert billing record: %w", err)
		}
		w.obsMetrics.RecordBillingRecord(ctx, record.Currency)
		return outcomeBilled, nil
	}

	balance, err := w.ledger.GetBalanceByTenant(ctx, d.TenantID)
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}

	recordID := record.ID
	_, err = w.ledger.Apply(ctx, ledgerdomain.ApplyRequest{
		BalanceID:       balance.ID,
		Amount:          record.TotalCost.Neg(),
		Type:            ledgerdomain.TransactionTypeUsageCharge,
		Detail:          chargeDetail(d, period),
		BillingRecordID: &recordID,
	}, ledgerdomain.WithTxHook(func(ctx context.Context, tx *gorm.DB, b ledgerdomain.Balance) error {
		if b.Currency != record.Currency {
			return fmt.Errorf("%w: balance %s, record %s", ledgerdomain.ErrCurrencyMismatch, b.Currency, record.Currency)
		}
		return w.records.Insert(ctx, tx, record)
	}))
	if errors.Is(err, billingrecorddomain.ErrSnapshotAlreadyApplied) || errors.Is(err, ledgerdomain.ErrDuplicateCharge) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, fmt.Errorf("apply usage charge: %w", err)
	}
	w.obsMetrics.RecordBillingRecord(ctx, record.Currency)
	return outcomeBilled, nil
}

// buildRecord freezes the current prices into a record. It returns nil when
// the deployment did not run during the period.
func (w *Worker) buildRecord(ctx context.Context, d deploymentdomain.Deployment, period Period) (*billingrecorddomain.BillingRecord, error) {
	start, end, ok := d.UsageWindow(period.Start, period.End)
	if !ok {
		return nil, nil
	}
	hours := billingrecorddomain.HoursBetween(start, end)
	if !hours.IsPositive() {
		return nil, nil
	}

	preset, err := w.catalog.Preset(ctx, d.PresetID)
	if err != nil {
		return nil, fmt.Errorf("resolve preset %s: %w", d.PresetID, err)
	}
	if err := preset.CheckAddons(d.AddonCPUMillicores, d.AddonMemoryMB); err != nil {
		return nil, err
	}

	var addon pricingdomain.AddonPrice
	rate, err := w.catalog.AddonRate(ctx)
	switch {
	case err == nil:
		addon = rate
	case errors.Is(err, pricingdomain.ErrAddonRateNotFound) && d.AddonCPUMillicores == 0 && d.AddonMemoryMB == 0:
		addon = pricingdomain.AddonPrice{Currency: preset.Currency}
	default:
		return nil, fmt.Errorf("resolve addon rate: %w", err)
	}
	if addon.Currency != "" && addon.Currency != preset.Currency {
		return nil, fmt.Errorf("%w: preset %s, addon %s", ledgerdomain.ErrCurrencyMismatch, preset.Currency, addon.Currency)
	}

	cost := billingrecorddomain.ComputeCost(billingrecorddomain.CostInput{
		PresetHourlyPrice:      preset.HourlyPrice,
		AddonCPUMillicores:     d.AddonCPUMillicores,
		AddonCPUHourlyPrice:    addon.CPUHourlyUnitPrice,
		AddonMemoryMB:          d.AddonMemoryMB,
		AddonMemoryHourlyPrice: addon.MemoryHourlyUnitPrice,
		Replicas:               d.DesiredReplicas,
		HoursUsed:              hours,
	})

	return &billingrecorddomain.BillingRecord{
		ID:                     w.genID.Generate(),
		TenantID:               d.TenantID,
		DeploymentID:           d.ID,
		PeriodStart:            period.Start,
		PeriodEnd:              period.End,
		DesiredReplicas:        d.DesiredReplicas,
		PresetID:               d.PresetID,
		PresetCPUMillicores:    preset.CPUMillicores,
		PresetMemoryMB:         preset.MemoryMB,
		PresetHourlyPrice:      preset.HourlyPrice,
		AddonCPUMillicores:     d.AddonCPUMillicores,
		AddonMemoryMB:          d.AddonMemoryMB,
		AddonCPUHourlyPrice:    addon.CPUHourlyUnitPrice,
		AddonMemoryHourlyPrice: addon.MemoryHourlyUnitPrice,
		CostPerHour:            cost.PerHour,
		HoursUsed:              hours,
		TotalCost:              cost.Total,
		Currency:               preset.Currency,
		ResourcesSnapshot:      resourcesSnapshot(d, preset, start, end),
		CreatedAt:              w.clock.Now().UTC(),
	}, nil
}

func resourcesSnapshot(d deploymentdomain.Deployment, preset pricingdomain.PresetPrice, start, end time.Time) datatypes.JSONMap {
	replicas := int64(d.DesiredReplicas)
	return datatypes.JSONMap{
		"status":                string(d.Status),
		"replicas":              replicas,
		"preset_cpu_millicores": preset.CPUMillicores,
		"preset_memory_mb":      preset.MemoryMB,
		"addon_cpu_millicores":  d.AddonCPUMillicores,
		"addon_memory_mb":       d.AddonMemoryMB,
		"total_cpu_millicores":  (preset.CPUMillicores + d.AddonCPUMillicores) * replicas,
		"total_memory_mb":       (preset.MemoryMB + d.AddonMemoryMB) * replicas,
		"window_start":          start.UTC().Format(time.RFC3339),
		"window_end":            end.UTC().Format(time.RFC3339),
	}
}

func chargeDetail(d deploymentdomain.Deployment, period Period) string {
	return fmt.Sprintf("Usage of deployment %s from %s to %s",
		d.ID,
		period.Start.UTC().Format(time.RFC3339),
		period.End.UTC().Format(time.RFC3339),
	)
}
