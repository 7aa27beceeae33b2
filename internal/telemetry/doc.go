// Package telemetry provides tracing and metrics for remedyd.
//
// Tracing uses OpenTelemetry with an optional OTLP gRPC exporter; when no
// endpoint is configured the tracer is a no-op. Metrics are prometheus
// collectors registered on a private registry and exposed by the operator
// HTTP surface. Telemetry failures degrade gracefully and never stop the
// remediation loop.
package telemetry
