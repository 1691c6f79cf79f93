package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/TheColorRed/hasura-query-builder/internal/client"
	"github.com/TheColorRed/hasura-query-builder/internal/config"
	"github.com/TheColorRed/hasura-query-builder/internal/logging"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/observability"
	"github.com/TheColorRed/hasura-query-builder/internal/querycache"
	"github.com/TheColorRed/hasura-query-builder/internal/transport"
)

// InitLogger builds the logger from cfg and, when log export is on, the
// OTLP logger provider behind it. out defaults to stderr.
func InitLogger(cfg *config.Config, out io.Writer) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: out,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	telemetry := cfg.Observability.Telemetry("logs")
	logger.Debug("initializing OpenTelemetry logging",
		slog.String("service_name", telemetry.ServiceName),
		slog.String("otlp_endpoint", telemetry.OTLPConfig.Endpoint),
		slog.String("otlp_protocol", telemetry.OTLPConfig.Protocol),
		slog.Bool("insecure", telemetry.OTLPConfig.Insecure),
	)
	loggerProvider, err := observability.InitLoggerProvider(telemetry)
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	return logger, loggerProvider, nil
}

// Init initializes all runtime resources. It is idempotent; a failed Init
// releases whatever it acquired.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	c, err := a.buildClient(ctx, metrics)
	if err != nil {
		return err
	}

	namer := naming.New(a.cfg.Naming, a.logger.Logger)
	naming.SetDefault(namer)
	cleanup.push("table namer", func(context.Context) error {
		naming.SetDefault(nil)
		return nil
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.tracerProvider = tracerProvider
	a.metrics = metrics
	a.client = c
	a.namer = namer
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

func (a *App) buildClient(ctx context.Context, metrics *observability.ClientMetrics) (*client.Client, error) {
	registry, err := a.cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection registry: %w", err)
	}
	tokens, err := a.cfg.Auth.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	tr := transport.New(transport.Options{
		TokenSource: tokens,
		Logger:      a.logger,
		Metrics:     metrics,
	})

	opts := []client.Option{
		client.WithLogger(a.logger),
		client.WithMetrics(metrics),
		client.WithChunkSize(a.cfg.Client.ChunkSize),
		client.WithValidation(a.cfg.Client.Validate),
	}
	if a.cfg.Cache.Enabled {
		opts = append(opts, client.WithCache(querycache.New(a.cfg.Cache.QueryCache())))
		a.logger.Debug("response cache enabled",
			slog.Duration("ttl", a.cfg.Cache.TTL),
			slog.Int("max_entries", a.cfg.Cache.MaxEntries),
		)
	}
	if a.cfg.Client.Debug && a.debug != nil {
		opts = append(opts, client.WithDebug(a.debug))
	}

	a.logger.Debug("client configured",
		slog.Any("connections", registry.Names()),
		slog.String("auth_mode", a.cfg.Auth.Mode),
		slog.Bool("validate", a.cfg.Client.Validate),
	)
	return client.New(registry, tr, opts...)
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ClientMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	telemetry := cfg.Observability.Telemetry("metrics")
	logger.Debug("initializing OpenTelemetry metrics",
		slog.String("service_name", telemetry.ServiceName),
		slog.String("service_version", telemetry.ServiceVersion),
		slog.String("environment", telemetry.Environment),
	)
	meterProvider, err := observability.InitMeterProvider(telemetry)
	if err != nil {
		return nil, nil, err
	}

	metrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		_ = meterProvider.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	telemetry := cfg.Observability.Telemetry("traces")
	logger.Debug("initializing OpenTelemetry tracing",
		slog.String("service_name", telemetry.ServiceName),
		slog.String("otlp_endpoint", telemetry.OTLPConfig.Endpoint),
		slog.String("otlp_protocol", telemetry.OTLPConfig.Protocol),
		slog.Float64("sample_ratio", telemetry.TraceSampleRatio),
	)
	return observability.InitTracerProvider(telemetry)
}
