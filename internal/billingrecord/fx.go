package billingrecord

import (
	"github.com/smallbiznis/computeledger/internal/billingrecord/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("billingrecord.repository",
	fx.Provide(repository.NewRepository),
)
