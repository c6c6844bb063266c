package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clipverse/payrail/internal/config"
	"github.com/clipverse/payrail/internal/logger"
	"github.com/clipverse/payrail/internal/observability/metrics"
	"github.com/clipverse/payrail/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires logging, tracing and metrics.
var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(
		provideTracingConfig,
		tracing.NewProvider,
		provideMetrics,
	),
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideTracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          getenvBool("OTEL_ENABLED", false),
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: getenv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		ExporterProtocol: getenv("OTEL_EXPORTER_PROTOCOL", "grpc"),
		SamplingRatio:    getenvFloat("OTEL_SAMPLING_RATIO", 1),
	}
}

func provideMetrics() *metrics.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}
