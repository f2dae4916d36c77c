// Package observability configures process-wide logging and trace propagation.
//
// Logs always go to stderr in text or JSON. When an exporter is configured they
// are also sent through the OpenTelemetry log bridge, filtered by the same
// minimum level.
package observability
