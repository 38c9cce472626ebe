// Package telemetry provides logging and OpenTelemetry initialization for
// the mesh core. When OTEL_EXPORTER_OTLP_ENDPOINT is set, TracerProvider,
// MeterProvider, and LoggerProvider are wired to OTLP/HTTP exporters; when
// unset, no-op providers are used so the core has zero telemetry overhead
// in tests and single-node runs.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Logger logs with a bracketed component tag, matching the teacher's
// "[Component] message" convention.
type Logger struct {
	component string
}

// NewLogger returns a Logger tagged with component, e.g. "[gossip]".
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	log.Printf("[%s] %s", l.component, fmt.Sprintf(format, args...))
}

// Error logs a structured operator-facing error line per spec.md §7:
// (component, operation, error_type, message).
func (l *Logger) Error(operation, errType string, err error) {
	log.Printf("[%s] operation=%s error=%s: %v", l.component, operation, errType, err)
}

// Init wires OTel providers from OTEL_EXPORTER_OTLP_ENDPOINT. The returned
// shutdown func flushes pending telemetry; it is always safe to call.
func Init(ctx context.Context, serviceName, serviceVersion string) (func(context.Context), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func(context.Context) {}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(), resource.WithFromEnv(), resource.WithTelemetrySDK())
	if err != nil {
		return func(context.Context) {}, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return func(context.Context) {}, fmt.Errorf("telemetry trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return shutdownFunc(tp), fmt.Errorf("telemetry metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter, metric.WithInterval(30*time.Second))),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExporter, err := otlploghttp.New(ctx)
	if err != nil {
		return shutdownFunc(tp, mp), fmt.Errorf("telemetry log exporter: %w", err)
	}
	lp := newLoggerProvider(logExporter, res)
	otellog.SetLoggerProvider(lp)
	InstallLogBridge(lp)

	log.Printf("[telemetry] initialized: endpoint=%s service=%s", endpoint, serviceName)

	return shutdownFunc(tp, mp, lp), nil
}

type shutdownable interface {
	Shutdown(context.Context) error
}

func shutdownFunc(providers ...shutdownable) func(context.Context) {
	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		for _, p := range providers {
			if p != nil {
				if err := p.Shutdown(ctx); err != nil {
					log.Printf("[telemetry] shutdown error: %v", err)
				}
			}
		}
	}
}
