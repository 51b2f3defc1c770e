// Package metrics exposes Prometheus metrics for the worker launcher on two endpoints.
//
// The system endpoint (default :9090) serves Go runtime, process and build info
// collectors. The application endpoint (default :9091) serves metrics created through
// MetricsCollector, most notably those recorded by OperationObserver, which implements
// observability.Observer and is handed to every consumer, producer, schema registry
// client and supervisor:
//
//	m := metrics.NewMetrics(metrics.Config{ServiceName: "billing-workers"})
//	obs := metrics.NewOperationObserver(m)
//
// Every metric carries a constant "service" label. FXModule wires the registries,
// the observer and the servers into an fx application.
package metrics
