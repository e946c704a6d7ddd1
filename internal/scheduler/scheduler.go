package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/computeledger/internal/clock"
	obsmetrics "github.com/smallbiznis/computeledger/internal/observability/metrics"
	"github.com/smallbiznis/computeledger/internal/onboarding"
	"github.com/smallbiznis/computeledger/internal/snapshot"
	suspensionservice "github.com/smallbiznis/computeledger/internal/suspension/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type snapshotRunner interface {
	RunOnce(ctx context.Context) ([]snapshot.RunReport, error)
}

type suspensionSweeper interface {
	RunOnce(ctx context.Context) (suspensionservice.SweepReport, error)
}

type onboardingPoller interface {
	ProcessPending(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Snapshot   *snapshot.Worker
	Enforcer   *suspensionservice.Enforcer
	Onboarding *onboarding.Consumer
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	snapshot   snapshotRunner
	enforcer   suspensionSweeper
	onboarding onboardingPoller

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Snapshot == nil || p.Enforcer == nil || p.Onboarding == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		snapshot:   p.Snapshot,
		enforcer:   p.Enforcer,
		onboarding: p.Onboarding,
	}, nil
}

type job struct {
	name      string
	schedule  string
	batchSize int
	timeout   time.Duration
	run       func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobOnboarding, s.cfg.OnboardingSchedule, 0, s.cfg.OnboardingTimeout, s.OnboardingJob},
		{JobSnapshot, s.cfg.SnapshotSchedule, 0, s.cfg.SnapshotTimeout, s.SnapshotJob},
		{JobSuspensionSweep, s.cfg.SweepSchedule, 0, s.cfg.SweepTimeout, s.SuspensionSweepJob},
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.beginRun(ctx, name, batchSize)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failed == 0 {
			run.failed++
		}
		run.finish()
	}
	if err == nil {
		return nil
	}

	// A timed out run is picked up again by the next tick.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		run.log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once, in dependency order: new tenants get
// a balance before usage is charged, and charges land before the sweep.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, j.batchSize, j.timeout, j.run))
	}
	return err
}

// RunJob runs a single job by name, ignoring EnabledJobs.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, j := range s.jobs() {
		if j.name == name {
			return s.runJob(ctx, j.name, j.batchSize, j.timeout, j.run)
		}
	}
	return ErrUnknownJob
}

// Start registers the enabled jobs on their cron schedules. A job whose
// previous run is still going skips the tick.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, cancel := context.WithCancel(context.Background())

	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		var id cron.EntryID
		id, err := c.AddFunc(j.schedule, func() {
			if prev := c.Entry(id).Prev; !prev.IsZero() {
				if lag := time.Since(prev); lag > 0 {
					obsmetrics.Scheduler().ObserveRunLoopLag(lag)
				}
			}
			if err := s.runJob(ctx, j.name, j.batchSize, j.timeout, j.run); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", j.name), zap.Error(err))
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, j.name, err)
		}
		s.log.Info("scheduler job registered",
			zap.String("job", j.name),
			zap.String("schedule", j.schedule),
		)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	return nil
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) SnapshotJob(ctx context.Context) error {
	ctx, run, owner := s.beginRun(ctx, JobSnapshot, 0)
	if owner {
		defer run.finish()
	}

	reports, err := s.snapshot.RunOnce(ctx)
	for _, report := range reports {
		run.count(len(report.Billed), len(report.Failed))
		if report.LeaseHeld {
			run.log.Info("scheduler.snapshot.deferred",
				zap.Time("period_start", report.Period.Start),
				zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonLeaseHeld),
			)
		}
	}
	if err != nil {
		run.fail("scheduler.snapshot.failed", "", err)
	}
	return err
}

func (s *Scheduler) SuspensionSweepJob(ctx context.Context) error {
	ctx, run, owner := s.beginRun(ctx, JobSuspensionSweep, 0)
	if owner {
		defer run.finish()
	}

	report, err := s.enforcer.RunOnce(ctx)
	run.count(len(report.Suspended)+len(report.Resumed), 0)
	if report.LeaseHeld {
		run.log.Info("scheduler.suspension.deferred",
			zap.String("reason", obsmetrics.SchedulerBatchDeferredReasonLeaseHeld),
		)
	}
	for _, failure := range report.Failed {
		run.fail("scheduler.suspension.tenant.failed", failure.TenantID, failure.Err)
	}
	if err != nil {
		run.fail("scheduler.suspension.failed", "", err)
	}
	return err
}

func (s *Scheduler) OnboardingJob(ctx context.Context) error {
	ctx, run, owner := s.beginRun(ctx, JobOnboarding, 0)
	if owner {
		defer run.finish()
	}

	processed, err := s.onboarding.ProcessPending(ctx)
	run.count(processed, 0)
	if err != nil {
		run.fail("scheduler.onboarding.failed", "", err)
	}
	return err
}
