package ledger

import (
	"github.com/smallbiznis/computeledger/internal/config"
	"github.com/smallbiznis/computeledger/internal/ledger/repository"
	"github.com/smallbiznis/computeledger/internal/ledger/service"
	"github.com/smallbiznis/computeledger/pkg/keylock"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(keylock.New),
	fx.Provide(provideServiceConfig),
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)

func provideServiceConfig(cfg config.Config) service.Config {
	return service.Config{
		LockTimeout: cfg.Billing.LockTimeout,
		MaxAttempts: cfg.Billing.MaxApplyAttempts,
	}
}
