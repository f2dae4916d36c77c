package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Exporter names an OpenTelemetry log exporter.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterOTLPHTTP Exporter = "otlp-http"
)

// instrumentationName identifies log records emitted through the bridge.
const instrumentationName = "github.com/florianilch/marketdesk"

// Options configures Instrument.
type Options struct {
	Level    slog.Level
	Format   string
	Exporter Exporter
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Instrument installs the default slog logger and the W3C trace context propagator.
// The returned function flushes and stops any exporter.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var console slog.Handler
	switch opts.Format {
	case "", "text":
		console = slog.NewTextHandler(out, handlerOpts)
	case "json":
		console = slog.NewJSONHandler(out, handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(context.Context) error { return nil }

	exporter, err := newExporter(ctx, opts.Exporter)
	if err != nil {
		return nil, err
	}

	handler := console
	if exporter != nil {
		processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
		global.SetLoggerProvider(provider)

		handler = fanout{console, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))}
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(handler))
	return shutdown, nil
}

func newExporter(ctx context.Context, name Exporter) (sdklog.Exporter, error) {
	switch name {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdoutlog.New()
	case ExporterOTLPGRPC:
		// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables
		return otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q", name)
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// fanout sends every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
