package telemetry

import (
	"context"
	"os"
	"testing"
)

func TestInitNoEndpoint(t *testing.T) {
	t.Parallel()
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	shutdown, err := Init(context.Background(), "test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init() with no endpoint should not error, got: %v", err)
	}
	shutdown(context.Background())
}

func TestParseLogLineWithTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		line          string
		wantComponent string
		wantBody      string
	}{
		{
			name:          "tagged with timestamp",
			line:          "2026/02/17 12:00:00 [gossip] learned 3 peers",
			wantComponent: "gossip",
			wantBody:      "learned 3 peers",
		},
		{
			name:          "tagged without timestamp",
			line:          "[node] operation=send_to_peer error=peer_not_found: <nil>",
			wantComponent: "node",
			wantBody:      "operation=send_to_peer error=peer_not_found: <nil>",
		},
		{
			name:          "no tag with timestamp",
			line:          "2026/02/17 12:00:00 plain log message",
			wantComponent: "general",
			wantBody:      "plain log message",
		},
		{
			name:          "no tag no timestamp",
			line:          "plain log message",
			wantComponent: "general",
			wantBody:      "plain log message",
		},
		{
			name:          "empty body after tag",
			line:          "[ratelimit]",
			wantComponent: "ratelimit",
			wantBody:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			component, body := parseLogLine(tt.line)
			if component != tt.wantComponent {
				t.Errorf("parseLogLine(%q) component = %q, want %q", tt.line, component, tt.wantComponent)
			}
			if body != tt.wantBody {
				t.Errorf("parseLogLine(%q) body = %q, want %q", tt.line, body, tt.wantBody)
			}
		})
	}
}
