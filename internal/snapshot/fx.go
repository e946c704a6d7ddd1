package snapshot

import (
	"go.uber.org/fx"
)

var Module = fx.Module("usage.snapshot",
	fx.Provide(ConfigFrom),
	fx.Provide(NewWorker),
)
