package metrics

// MetricsCollector creates application metrics without exposing Prometheus types.
// Every metric is registered on the application registry and carries the
// service label from Config.
type MetricsCollector interface {
	// CreateCounter registers a counter vector.
	//
	//   failures := m.CreateCounter("worker_failures_total", "Terminal worker failures", []string{"worker"})
	//   failures.WithLabelValues("invoice-consumer").Inc()
	CreateCounter(name, help string, labels []string) Counter

	// CreateHistogram registers a histogram vector with the given buckets.
	// A nil buckets slice uses the Prometheus defaults.
	CreateHistogram(name, help string, labels []string, buckets []float64) Histogram

	// CreateGauge registers a gauge vector.
	//
	//   running := m.CreateGauge("workers_running", "Workers currently running", []string{"worker"})
	//   running.WithLabelValues("invoice-consumer").Inc()
	CreateGauge(name, help string, labels []string) Gauge
}
