package snapshot

import (
	"time"

	"github.com/smallbiznis/computeledger/internal/config"
)

// Config controls the usage snapshot worker.
type Config struct {
	Period            time.Duration
	Lookback          int
	Concurrency       int
	DeploymentTimeout time.Duration
	// LeaseTTL must exceed the scheduler's snapshot timeout; the lease is
	// not renewed while a period runs.
	LeaseTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Period:            time.Hour,
		Lookback:          3,
		Concurrency:       8,
		DeploymentTimeout: 10 * time.Second,
		LeaseTTL:          15 * time.Minute,
	}
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		Period:      cfg.Billing.Period,
		Lookback:    cfg.Billing.Lookback,
		Concurrency: cfg.Billing.SnapshotConcurrency,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Period <= 0 {
		c.Period = defaults.Period
	}
	if c.Lookback <= 0 {
		c.Lookback = defaults.Lookback
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.DeploymentTimeout <= 0 {
		c.DeploymentTimeout = defaults.DeploymentTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	return c
}
