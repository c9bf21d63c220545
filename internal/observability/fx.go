package observability

import (
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),

	// logs
	fx.Provide(
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:         cfg.ServiceName,
				Environment:         cfg.Environment,
				Version:             cfg.Version,
				Level:               cfg.Log.Level,
				Format:              cfg.Log.Format,
				Debug:               cfg.Debug(),
				IncludeCaller:       true,
				IncludeStackOnError: cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) logger.GormLoggerConfig {
			gormCfg := logger.DefaultGormLoggerConfig()
			gormCfg.Level = cfg.SQL.gormLevel()
			gormCfg.SlowThreshold = cfg.SQL.SlowThreshold
			return gormCfg
		},
	),

	// traces
	fx.Provide(
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Otel.Enabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.Otel.Endpoint,
				ExporterProtocol: cfg.Otel.Protocol,
				SamplingRatio:    cfg.Otel.SamplingRatio,
			}
		},
		tracing.NewProvider,
	),
	// the provider registers itself as the global tracer provider
	fx.Invoke(func(*sdktrace.TracerProvider) {}),

	// metrics
	fx.Provide(
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.Otel.Enabled,
				ExporterEndpoint: cfg.Otel.Endpoint,
				ExporterProtocol: cfg.Otel.Protocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.SchedulerWithConfig,
	),
)
