package metrics

import (
	"github.com/aalemi-dev/kafka-workers/observability"
)

// OperationObserver records every observed operation as Prometheus metrics:
//
//	<ns>_operations_total{component, operation, resource, status}
//	<ns>_operation_duration_seconds{component, operation}
//	<ns>_operation_bytes_total{component, operation, resource}
//
// It also tracks supervised workers:
//
//	<ns>_workers_running{worker}
//	<ns>_worker_attempts_total{worker}
//	<ns>_worker_failures_total{worker}
type OperationObserver struct {
	operations Counter
	durations  Histogram
	bytes      Counter
	running    Gauge
	attempts   Counter
	failures   Counter
}

// NewOperationObserver registers the operation metrics on m.
// Call it once per Metrics; registering twice panics.
func NewOperationObserver(m *Metrics) *OperationObserver {
	ns := m.namespace
	return &OperationObserver{
		operations: m.CreateCounter(ns+"_operations_total", "Completed operations by component and status.",
			[]string{"component", "operation", "resource", "status"}),
		durations: m.CreateHistogram(ns+"_operation_duration_seconds", "Operation latency in seconds.",
			[]string{"component", "operation"}, nil),
		bytes: m.CreateCounter(ns+"_operation_bytes_total", "Payload bytes or message counts handled by operations.",
			[]string{"component", "operation", "resource"}),
		running: m.CreateGauge(ns+"_workers_running", "Supervised worker instances currently running.",
			[]string{"worker"}),
		attempts: m.CreateCounter(ns+"_worker_attempts_total", "Worker attempts started, including the first.",
			[]string{"worker"}),
		failures: m.CreateCounter(ns+"_worker_failures_total", "Workers that stopped after a terminal failure.",
			[]string{"worker"}),
	}
}

// ObserveOperation implements observability.Observer.
func (o *OperationObserver) ObserveOperation(ctx observability.OperationContext) {
	o.operations.WithLabelValues(ctx.Component, ctx.Operation, ctx.Resource, ctx.Status()).Inc()
	o.durations.WithLabelValues(ctx.Component, ctx.Operation).Observe(ctx.Duration.Seconds())
	if ctx.Size > 0 {
		o.bytes.WithLabelValues(ctx.Component, ctx.Operation, ctx.Resource).Add(float64(ctx.Size))
	}

	if ctx.Component != "worker" {
		return
	}
	switch ctx.Operation {
	case "attempt_started":
		o.attempts.WithLabelValues(ctx.Resource).Inc()
		o.running.WithLabelValues(ctx.Resource).Inc()
	case "attempt_ended":
		o.running.WithLabelValues(ctx.Resource).Dec()
	case "worker_stopped":
		if ctx.Error != nil {
			o.failures.WithLabelValues(ctx.Resource).Inc()
		}
	}
}

var _ observability.Observer = (*OperationObserver)(nil)
