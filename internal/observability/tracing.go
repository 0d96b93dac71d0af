package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ExporterEnv = "CATALYST_OTEL_EXPORTER"
	tracerName  = "catalyst/samplers"

	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

var (
	tracerOnce sync.Once
	shutdownFn func(context.Context) error
)

// ParseExporter normalizes an exporter name; empty means none.
func ParseExporter(raw string) (string, error) {
	switch name := strings.ToLower(strings.TrimSpace(raw)); name {
	case "", ExporterNone:
		return ExporterNone, nil
	case ExporterStdout:
		return name, nil
	default:
		return "", fmt.Errorf("unknown %s %q (want %s|%s)", ExporterEnv, raw, ExporterNone, ExporterStdout)
	}
}

// InitTracingFromEnv installs the global tracer provider. Spans are dropped
// unless CATALYST_OTEL_EXPORTER=stdout, in which case they are written to w.
func InitTracingFromEnv(service string, w io.Writer) (func(context.Context) error, error) {
	exporterName, err := ParseExporter(os.Getenv(ExporterEnv))
	if err != nil {
		return func(context.Context) error { return nil }, err
	}
	var initErr error
	tracerOnce.Do(func() {
		if exporterName == ExporterNone {
			otel.SetTracerProvider(noop.NewTracerProvider())
			shutdownFn = func(context.Context) error { return nil }
			return
		}

		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			initErr = err
			return
		}
		res, err := resource.New(context.Background(),
			resource.WithAttributes(semconv.ServiceNameKey.String(service)),
		)
		if err != nil {
			initErr = err
			return
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdownFn = tp.Shutdown
	})
	if shutdownFn == nil {
		shutdownFn = func(context.Context) error { return nil }
	}
	return shutdownFn, initErr
}

func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}
