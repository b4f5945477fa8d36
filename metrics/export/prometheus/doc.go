// Package prometheus exposes authcore metrics as a client_golang Collector.
//
// [NewCollector] reads [authcore.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so the engine's hot path never touches client_golang.
// Counter names are prefixed authcore_*_total; the single histogram is
// authcore_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the
//     collector or mount [Collector.Handler], which uses a private registry.
//   - Mutate engine state.
package prometheus
