package logger

import (
	"context"
)

// Logger is the structured logging contract used throughout the module.
// Every method takes an optional error and any number of field maps; later maps
// override earlier ones on key collisions.
//
// *LoggerClient implements Logger. Library packages (kafka, schema_registry, consumer,
// producer, worker) declare narrower interfaces with the *WithContext subset so they can
// be used without this package.
type Logger interface {
	// Debug logs a message useful while diagnosing a worker.
	Debug(msg string, err error, fields ...map[string]interface{})

	// Info logs normal progress, such as a worker starting or a schema being registered.
	Info(msg string, err error, fields ...map[string]interface{})

	// Warn logs a recoverable problem, such as a retried delivery.
	Warn(msg string, err error, fields ...map[string]interface{})

	// Error logs a failure affecting the current operation.
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs and then exits the process with status 1.
	Fatal(msg string, err error, fields ...map[string]interface{})

	// DebugWithContext is Debug plus trace correlation fields taken from ctx.
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// InfoWithContext is Info plus trace correlation fields taken from ctx.
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// WarnWithContext is Warn plus trace correlation fields taken from ctx.
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// ErrorWithContext is Error plus trace correlation fields taken from ctx.
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})

	// FatalWithContext is Fatal plus trace correlation fields taken from ctx.
	FatalWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}
