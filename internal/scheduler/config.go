package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/computeledger/internal/config"
	"github.com/smallbiznis/computeledger/internal/snapshot"
	suspensionservice "github.com/smallbiznis/computeledger/internal/suspension/service"
)

const (
	JobSnapshot        = "usage_snapshot"
	JobSuspensionSweep = "suspension_sweep"
	JobOnboarding      = "onboarding_poll"
)

// Config controls job cadence and per-run timeouts. Schedules use the
// standard cron syntax plus descriptors such as "@every 5m".
type Config struct {
	SnapshotSchedule   string
	SweepSchedule      string
	OnboardingSchedule string
	SnapshotTimeout    time.Duration
	SweepTimeout       time.Duration
	OnboardingTimeout  time.Duration
	EnabledJobs        []string
}

func DefaultConfig() Config {
	return Config{
		SnapshotSchedule:   "@every 5m",
		SweepSchedule:      "@every 5m",
		OnboardingSchedule: "@every 10s",
		SnapshotTimeout:    10 * time.Minute,
		SweepTimeout:       2 * time.Minute,
		OnboardingTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SnapshotSchedule == "" {
		c.SnapshotSchedule = defaults.SnapshotSchedule
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = defaults.SweepSchedule
	}
	if c.OnboardingSchedule == "" {
		c.OnboardingSchedule = defaults.OnboardingSchedule
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = defaults.SnapshotTimeout
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = defaults.SweepTimeout
	}
	if c.OnboardingTimeout <= 0 {
		c.OnboardingTimeout = defaults.OnboardingTimeout
	}
	return c
}

func (c Config) validate() error {
	for job, spec := range map[string]string{
		JobSnapshot:        c.SnapshotSchedule,
		JobSuspensionSweep: c.SweepSchedule,
		JobOnboarding:      c.OnboardingSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%w: %s schedule %q: %v", ErrInvalidConfig, job, spec, err)
		}
	}
	// A job that outlives its lease would let a second run start beside it.
	if ttl := snapshot.DefaultConfig().LeaseTTL; c.SnapshotTimeout >= ttl {
		return fmt.Errorf("%w: snapshot timeout %s must be shorter than its lease %s", ErrInvalidConfig, c.SnapshotTimeout, ttl)
	}
	if c.SweepTimeout >= suspensionservice.SweepLeaseTTL {
		return fmt.Errorf("%w: sweep timeout %s must be shorter than its lease %s", ErrInvalidConfig, c.SweepTimeout, suspensionservice.SweepLeaseTTL)
	}
	return nil
}

func ProvideConfig(cfg config.Config) (Config, error) {
	out := Config{
		SnapshotSchedule:   cfg.Billing.SnapshotSchedule,
		SweepSchedule:      cfg.Billing.SweepSchedule,
		OnboardingSchedule: cfg.Billing.OnboardingSchedule,
		EnabledJobs:        cfg.Billing.EnabledJobs,
	}.withDefaults()
	if err := out.validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}
