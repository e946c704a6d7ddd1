package observability

import (
	"strings"

	"github.com/smallbiznis/computeledger/internal/config"
	"github.com/smallbiznis/computeledger/internal/observability/logger"
	"github.com/smallbiznis/computeledger/internal/observability/metrics"
	"github.com/smallbiznis/computeledger/internal/observability/tracing"
)

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Telemetry   config.TelemetryRuntime
	Endpoint    string
}

func NewConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "computeledger"
	}
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
		Endpoint:    strings.TrimSpace(cfg.OTLPEndpoint),
	}
}

// Debug is true for debug logging and for non-production environments.
func (c Config) Debug() bool {
	if c.Telemetry.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Telemetry.LogLevel,
		Format:              c.Telemetry.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.Telemetry.TracesEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.Endpoint,
		ExporterProtocol: c.Telemetry.OTLPProtocol,
		SamplingRatio:    c.Telemetry.SamplingRatio,
	}
}

func (c Config) metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.Telemetry.MetricsEnabled,
		ExporterEndpoint: c.Endpoint,
		ExporterProtocol: c.Telemetry.OTLPProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
