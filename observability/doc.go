// Package observability defines the hook every component in this module uses to report
// completed operations.
//
// Broker backends, the schema registry client, consumers, producers and the worker
// supervisor all accept an optional Observer. The metrics package provides an
// implementation that turns operations into Prometheus counters and histograms:
//
//	obs := metrics.NewOperationObserver(m)
//	client := schema_registry.NewClient(cfg).WithObserver(obs)
//
// Several observers can be combined with Multi:
//
//	observability.Multi{metricsObserver, auditObserver}
//
// Observer implementations must be thread-safe.
package observability
