// Package prometheus provides Prometheus collectors for sessiongate metrics.
//
// [NewPrometheusExporter] accepts a [sessiongate.Manager] and exposes an [http.Handler]
// that renders all sessiongate counters and histograms in Prometheus text exposition
// format. Counter names are prefixed sessiongate_*_total; the single histogram is
// sessiongate_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate manager state.
package prometheus
