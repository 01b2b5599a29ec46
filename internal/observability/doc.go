// Package observability provides structured logging, Prometheus metrics,
// and OpenTelemetry tracing for the engine.
//
// The three concerns are independent: components take a *Logger, a
// *Metrics, and a *Tracer separately, and each degrades to a cheap no-op
// when unconfigured. Logging redacts API keys and other secrets before
// records are written.
package observability
