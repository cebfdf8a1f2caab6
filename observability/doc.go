// Package observability provides an OpenTelemetry metrics extension. The
// MetricsExtension implements the lifecycle hooks of package ext and keeps
// per-queue counters for admitted, leased, acked, nacked, requeued and
// dead jobs, plus an acknowledgement latency histogram.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
