package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the system and application registries and their HTTP servers.
// A server is nil when its endpoint is disabled.
type Metrics struct {
	// SystemServer serves Go runtime, process and build info metrics on /metrics.
	SystemServer *http.Server

	// ApplicationServer serves metrics created through MetricsCollector on /metrics.
	ApplicationServer *http.Server

	// SystemRegistry holds the runtime collectors. nil when the system endpoint is disabled.
	SystemRegistry *prometheus.Registry

	// ApplicationRegistry holds application metrics. Always non-nil.
	ApplicationRegistry *prometheus.Registry

	namespace  string
	registerer prometheus.Registerer
}

// NewMetrics builds both registries and, unless disabled, their servers.
// The servers are started by RegisterMetricsLifecycle.
func NewMetrics(cfg Config) *Metrics {
	m := &Metrics{namespace: cfg.Namespace}
	if m.namespace == "" {
		m.namespace = DefaultNamespace
	}
	serviceLabel := prometheus.Labels{"service": cfg.ServiceName}

	systemAddr := DefaultSystemMetricsAddress
	if cfg.SystemMetricsAddress != nil {
		systemAddr = *cfg.SystemMetricsAddress
	}
	if systemAddr != "" {
		m.SystemRegistry = prometheus.NewRegistry()
		prometheus.WrapRegistererWith(serviceLabel, m.SystemRegistry).MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
		m.SystemServer = newMetricsServer(systemAddr, m.SystemRegistry)
	}

	m.ApplicationRegistry = prometheus.NewRegistry()
	m.registerer = prometheus.WrapRegistererWith(serviceLabel, m.ApplicationRegistry)

	appAddr := DefaultApplicationMetricsAddress
	if cfg.ApplicationMetricsAddress != nil {
		appAddr = *cfg.ApplicationMetricsAddress
	}
	if appAddr != "" {
		m.ApplicationServer = newMetricsServer(appAddr, m.ApplicationRegistry)
	}

	return m
}

func newMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux} //nolint:gosec
}
