// Package metrics collects build and plugin metrics.
//
// # Recorder
//
// Every component that emits metrics holds a Recorder. The zero
// configuration uses NoopRecorder, so callers never check for nil and a
// site without metrics pays nothing for the instrumentation points.
//
// # Implementations
//
//  1. NoopRecorder - the default, every method is empty
//  2. PrometheusRecorder - counters and histograms on a Prometheus registry
//
// # Wiring
//
// The watch command creates a PrometheusRecorder when a metrics listen
// address is configured and serves its registry over HTTP:
//
//	registry := prometheus.NewRegistry()
//	recorder := metrics.NewPrometheusRecorder(registry)
//	handler := metrics.HTTPHandler(registry)
//
// One-shot builds keep the NoopRecorder.
package metrics
