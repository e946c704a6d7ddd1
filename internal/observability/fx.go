package observability

import (
	"github.com/smallbiznis/computeledger/internal/observability/logger"
	"github.com/smallbiznis/computeledger/internal/observability/metrics"
	"github.com/smallbiznis/computeledger/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewConfig,
		func(c Config) logger.Config { return c.logger() },
		func(c Config) tracing.Config { return c.tracing() },
		func(c Config) metrics.Config { return c.metrics() },
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
	),
	// Scheduler metrics are a process-wide prometheus singleton; labels
	// are fixed on first use, so it is configured before any job runs.
	fx.Invoke(func(_ *sdktrace.TracerProvider, cfg metrics.Config) {
		metrics.SchedulerWithConfig(cfg)
	}),
)
