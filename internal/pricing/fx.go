package pricing

import (
	"github.com/smallbiznis/computeledger/internal/pricing/domain"
	"github.com/smallbiznis/computeledger/internal/pricing/repository"
	"github.com/smallbiznis/computeledger/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service) domain.Catalog { return svc }),
)
