package tracer

// Config controls the OpenTelemetry tracer provider.
type Config struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name"`

	// AppEnv is reported as deployment.environment, for example "staging".
	AppEnv string `mapstructure:"app_env"`

	// EnableExport sends spans to an OTLP HTTP collector configured through the
	// standard OTEL_EXPORTER_OTLP_* environment variables. When false, spans are
	// still created so trace context propagates through Kafka headers, but they are
	// never exported.
	EnableExport bool `mapstructure:"enable_export"`
}
