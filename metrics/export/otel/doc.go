// Package otel provides OpenTelemetry metric bindings for authcore
// counters and histograms.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for
// each engine metric and Int64ObservableGauge per histogram bucket. A
// single callback reads [authcore.Engine.MetricsSnapshot] on each
// collection cycle. Callers own the MeterProvider and supply the Meter.
package otel
