package telemetry

import (
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// newLoggerProvider wraps the OTLP log exporter in a batch processor, kept
// as its own small file since it's the one piece of provider wiring that
// needs the sdk/log import alongside the trace/metric providers in
// telemetry.go.
func newLoggerProvider(exporter sdklog.Exporter, res *resource.Resource) *sdklog.LoggerProvider {
	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)
}
