package deployment

import (
	"github.com/smallbiznis/computeledger/internal/deployment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("deployment.repository",
	fx.Provide(repository.NewRepository),
)
