// Package observability installs the process-wide OpenTelemetry tracer
// provider. Pipeline stages and HTTP requests record spans through the
// global otel API; without Init those spans are no-ops.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/pkg/lifecycle"
)

// Service identifies the traced process.
type Service struct {
	Name        string
	Version     string
	Environment string
}

// Init installs a batching tracer provider when tracing is enabled and
// registers its flush with the coordinator's shutdown. It is a no-op when
// tracing is disabled.
func Init(ctx context.Context, cfg *config.TracingConfig, svc Service, lc *lifecycle.Coordinator, logger *slog.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	logger = logger.With("system", "tracing")

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(svc.Name),
			semconv.ServiceVersionKey.String(svc.Version),
			attribute.String("deployment.environment", svc.Environment),
		),
	)
	if err != nil {
		logger.Warn("otel resource init failed (continuing)", "error", err)
	}

	exporter, err := exporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	if cfg.Endpoint == "" {
		logger.Warn("otel using stdout exporter (no endpoint configured)")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if lc != nil {
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			flush, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(flush); err != nil {
				logger.Error("tracer shutdown failed", "error", err)
			}
		})
	}

	logger.Info("tracing initialized", "service", svc.Name, "endpoint", cfg.Endpoint, "sample_ratio", cfg.SampleRatio)
	return nil
}

// Sampler follows the parent's decision and samples root spans at ratio.
func Sampler(ratio float64) sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func exporter(ctx context.Context, cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}
