// Package metrics provides Prometheus instrumentation for the stream
// pipeline.
//
// All metrics are prefixed with "stream_pipeline_" to avoid naming
// collisions with other applications. Metrics are registered with the
// default registry via promauto; expose them by mounting
// promhttp.Handler() on the admin mux.
package metrics
