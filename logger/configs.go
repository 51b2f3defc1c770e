package logger

// Log levels accepted by Config.Level.
const (
	// Debug enables every message, including Debug.
	Debug = "debug"

	// Info enables Info, Warning and Error messages. This is the default.
	Info = "info"

	// Warning enables Warning and Error messages.
	Warning = "warning"

	// Error enables Error messages only.
	Error = "error"
)

// Config controls how NewLoggerClient builds the underlying zap logger.
type Config struct {
	// Level is the minimum level written. One of Debug, Info, Warning, Error.
	// Unknown values fall back to Info.
	//
	// Configured through the launcher with the "log_level" key or
	// KAFKA_WORKERS_LOG_LEVEL.
	Level string `mapstructure:"log_level"`

	// EnableTracing adds trace_id and span_id fields to entries logged with one of the
	// *WithContext methods when the context carries a recording span.
	EnableTracing bool `mapstructure:"enable_tracing"`

	// ServiceName populates the "service" field on every entry.
	ServiceName string `mapstructure:"service_name"`

	// CallerSkip is the number of stack frames skipped when reporting the caller.
	// Zero or negative values mean 1, which reports the direct caller of the wrapper.
	CallerSkip int `mapstructure:"caller_skip"`
}
