// Package otel publishes authcore metrics through an OpenTelemetry Meter.
//
// [NewExporter] registers one Int64ObservableCounter per authcore counter and,
// for the latency histogram, a cumulative bucket gauge keyed by an "le"
// attribute plus a count gauge. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
