package metrics

// Default listen addresses for the two metrics endpoints.
const (
	DefaultSystemMetricsAddress      = ":9090"
	DefaultApplicationMetricsAddress = ":9091"

	// DefaultNamespace prefixes every metric created by OperationObserver.
	DefaultNamespace = "kafka_workers"
)

// Config controls the two Prometheus endpoints.
//
// The system endpoint exposes Go runtime, process and build info collectors. The
// application endpoint exposes metrics created through MetricsCollector, including the
// operation metrics recorded by OperationObserver.
type Config struct {
	// SystemMetricsAddress is the listen address of the system endpoint.
	// nil means DefaultSystemMetricsAddress; a pointer to "" disables the server.
	SystemMetricsAddress *string `mapstructure:"system_address"`

	// ApplicationMetricsAddress is the listen address of the application endpoint.
	// nil means DefaultApplicationMetricsAddress; a pointer to "" disables the server,
	// metrics are then still collected in an unexposed registry.
	ApplicationMetricsAddress *string `mapstructure:"application_address"`

	// ServiceName is attached as the constant "service" label on every metric.
	ServiceName string `mapstructure:"service_name"`

	// Namespace prefixes operation metric names. Defaults to DefaultNamespace.
	Namespace string `mapstructure:"namespace"`
}

// Ptr returns a pointer to s, for the address fields of Config.
//
//	cfg := metrics.Config{SystemMetricsAddress: metrics.Ptr("")} // system endpoint disabled
func Ptr(s string) *string {
	return &s
}
