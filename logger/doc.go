// Package logger provides the zap-backed structured logger used by the launcher and
// handed to every worker.
//
// Entries are JSON on stderr with ISO8601 timestamps and "pid"/"service" fields.
// Fields are passed as maps:
//
//	log.Info("worker stopped", nil, map[string]interface{}{"worker": name, "attempts": 3})
//
// The *WithContext variants add trace_id and span_id when Config.EnableTracing is set
// and the context carries a recording OpenTelemetry span, which links consumer log
// lines to the "kafka:consume" span of the message being handled.
//
// FXModule provides *LoggerClient and Logger to an fx application.
package logger
