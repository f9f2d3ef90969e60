package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"reelvault/internal/config"
)

const (
	ServiceName    = "reelvault"
	ServiceVersion = "1.0.0"
)

// Tracer owns the tracer provider installed as the global provider
type Tracer struct {
	tp *sdktrace.TracerProvider
}

// Setup installs a global tracer provider when tracing is enabled. With
// tracing disabled the otel no-op provider stays in place and the returned
// Tracer's Shutdown does nothing.
func Setup(cfg config.TracingConfig, serviceName string) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{}, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(ServiceVersion),
	)

	var exp sdktrace.SpanExporter
	var err error

	if cfg.UseOTLP {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exp, err = otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	} else {
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Tracer{tp: tp}, nil
}

// Shutdown flushes and stops the provider
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}

// Start opens a span on the global provider
func Start(ctx context.Context, component, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(ServiceName+"/"+component).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) and ends the span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ThumbnailAttrs returns the common attributes of a thumbnail strategy span
func ThumbnailAttrs(strategy, videoPath string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("component", "thumbnail"),
		attribute.String("thumbnail.strategy", strategy),
		attribute.String("video.path", videoPath),
	}
}

// UploadAttrs returns the common attributes of an upload span
func UploadAttrs(filename string, isSeries bool, seriesName string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("component", "upload"),
		attribute.String("upload.filename", filename),
		attribute.Bool("upload.is_series", isSeries),
	}
	if seriesName != "" {
		attrs = append(attrs, attribute.String("upload.series", seriesName))
	}
	return attrs
}
