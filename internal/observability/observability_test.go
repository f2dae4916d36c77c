package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInstrumentFormats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		format string
		want   string
	}{
		{format: "text", want: "msg=hello"},
		{format: "json", want: `"msg":"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			shutdown, err := Instrument(context.Background(), Options{Level: slog.LevelInfo, Format: tt.format, Output: &buf})
			if err != nil {
				t.Fatalf("Instrument() error = %v", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			slog.Debug("hidden")
			slog.Info("hello")

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
			if strings.Contains(buf.String(), "hidden") {
				t.Errorf("debug record emitted at info level")
			}
		})
	}
}

func TestInstrumentRejectsUnknownSettings(t *testing.T) {
	if _, err := Instrument(context.Background(), Options{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := Instrument(context.Background(), Options{Exporter: "kafka"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestFanoutLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("component", "test")

	logger.Info("info")
	logger.Warn("warn")

	if !strings.Contains(debugBuf.String(), "msg=info") || !strings.Contains(debugBuf.String(), "msg=warn") {
		t.Errorf("debug handler missed records: %s", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "msg=info") {
		t.Errorf("warn handler got info record: %s", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), "component=test") {
		t.Errorf("attrs not propagated: %s", warnBuf.String())
	}
}

func TestSeverity(t *testing.T) {
	if severity(slog.LevelDebug) >= severity(slog.LevelInfo) {
		t.Error("debug must map below info")
	}
	if severity(slog.LevelError) <= severity(slog.LevelWarn) {
		t.Error("error must map above warn")
	}
}
