package telemetry

import (
	"io"
	"log"
	"os"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// logBridgeWriter is an io.Writer that intercepts stdlib log output, parses
// the Logger's "[component]" prefix into a structured attribute, and emits
// an OTel log record alongside writing the original line to stderr.
type logBridgeWriter struct {
	stderr io.Writer
	logger otellog.Logger
}

func (w *logBridgeWriter) Write(p []byte) (int, error) {
	n, err := w.stderr.Write(p)

	line := strings.TrimSpace(string(p))
	if line == "" {
		return n, err
	}

	component, body := parseLogLine(line)

	var record otellog.Record
	record.SetTimestamp(time.Now())
	record.SetBody(otellog.StringValue(body))
	record.SetSeverity(otellog.SeverityInfo)
	record.AddAttributes(otellog.String("component", component))

	w.logger.Emit(nil, record) //nolint:staticcheck // nil context is fine for fire-and-forget

	return n, err
}

// parseLogLine extracts the "[component]" prefix Logger.Printf/Error emit.
// Input:  "2026/02/17 12:00:00 [gossip] operation=learn error=nil: <nil>"
// Output: component="gossip", body="operation=learn error=nil: <nil>"
//
// If no bracketed prefix is found, component is "general" and body is the
// full line (with the stdlib log timestamp prefix stripped if present).
func parseLogLine(line string) (component, body string) {
	stripped := line
	if len(line) > 20 && line[4] == '/' && line[7] == '/' && line[10] == ' ' && line[13] == ':' {
		stripped = strings.TrimSpace(line[20:])
	}

	if len(stripped) > 2 && stripped[0] == '[' {
		if end := strings.IndexByte(stripped, ']'); end > 1 {
			return strings.ToLower(stripped[1:end]), strings.TrimSpace(stripped[end+1:])
		}
	}

	return "general", stripped
}

// InstallLogBridge redirects stdlib log output (the Logger type's
// destination via log.Printf) to both stderr and lp, so every
// "[component] ..." line this core already logs is also emitted as a
// structured OTel log record. Existing Logger.Printf/Error call sites need
// no changes.
func InstallLogBridge(lp *sdklog.LoggerProvider) {
	logger := lp.Logger("omerta.log")
	log.SetOutput(&logBridgeWriter{stderr: os.Stderr, logger: logger})
}
