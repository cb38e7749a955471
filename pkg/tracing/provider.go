package tracing

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/WilliamDuke02/databaseProject/pkg/tracing/exporters"
)

type Config struct {
	Enabled     bool
	ServiceName string
	// Exporter is "otlp" or "log"
	Exporter string
	OTLP     exporters.OTLPConfig
}

// Init installs a tracer provider for the process and returns its shutdown func.
// When tracing is disabled StartSpan keeps returning no-op spans.
func Init(ctx context.Context, cfg Config, logger ectologger.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		exp, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporter = exp
	case "log", "":
		exporter = exporters.NewLogExporter(logger)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	otel.SetTracerProvider(tp)
	SetTracer(tp.Tracer(cfg.ServiceName))

	logger.WithFields(map[string]any{
		"service":  cfg.ServiceName,
		"exporter": cfg.Exporter,
	}).Info("tracing enabled")

	return tp.Shutdown, nil
}
