package suspension

import (
	"github.com/smallbiznis/computeledger/internal/suspension/publisher"
	"github.com/smallbiznis/computeledger/internal/suspension/repository"
	"github.com/smallbiznis/computeledger/internal/suspension/service"
	"go.uber.org/fx"
)

var Module = fx.Module("suspension.enforcer",
	fx.Provide(repository.NewRepository),
	fx.Provide(publisher.New),
	fx.Provide(service.NewEnforcer),
)
