package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yungbote/taskstream-backend/internal/platform/envutil"
	"github.com/yungbote/taskstream-backend/internal/platform/logger"
)

type TracingConfig struct {
	ServiceName string
	Environment string
	Version     string
}

func noopShutdown(context.Context) error { return nil }

// InitTracing installs the global tracer provider when OTEL_ENABLED is set. Spans go to the
// OTLP/HTTP endpoint in OTEL_EXPORTER_OTLP_ENDPOINT, or to stdout when none is configured.
// The returned func flushes and stops the provider.
func InitTracing(ctx context.Context, log *logger.Logger, cfg TracingConfig) func(context.Context) error {
	if !envutil.Bool("OTEL_ENABLED", false) {
		return noopShutdown
	}
	if log == nil {
		log = logger.Nop()
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "taskstream"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
		attribute.String("service.version", strings.TrimSpace(cfg.Version)),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))
	opts := []sdktrace.TracerProviderOption{sdktrace.WithSampler(sampler), sdktrace.WithResource(res)}
	exporter, err := traceExporter(ctx, log)
	if err != nil {
		log.Warn("otel exporter init failed (continuing without export)", "error", err)
	} else {
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", "service", name, "endpoint", envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "stdout"))
	return tp.Shutdown
}

func sampleRatio() float64 {
	f, err := parseRatio(envutil.String("OTEL_SAMPLER_RATIO", ""))
	if err != nil {
		return 0.1
	}
	return f
}

func traceExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	endpoint := envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if endpoint == "" {
		log.Warn("otel using stdout exporter (no OTLP endpoint configured)")
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false) {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if h := parseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")); len(h) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}
	return otlptracehttp.New(ctx, opts...)
}
