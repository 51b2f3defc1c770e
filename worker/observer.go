package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// observe reports a supervisor operation with the worker name as resource and the
// attempt number as sub-resource.
func observe(observer observability.Observer, operation, name string, attempt int, duration time.Duration, err error) {
	if observer == nil {
		return
	}

	observer.ObserveOperation(observability.OperationContext{
		Component:   "worker",
		Operation:   operation,
		Resource:    name,
		SubResource: strconv.Itoa(attempt),
		Duration:    duration,
		Error:       err,
	})
}

// logInfo and its siblings are no-ops without a logger.
func logInfo(logger Logger, ctx context.Context, msg string, fields map[string]interface{}) {
	if logger != nil {
		logger.InfoWithContext(ctx, msg, nil, fields)
	}
}

func logWarn(logger Logger, ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if logger != nil {
		logger.WarnWithContext(ctx, msg, err, fields)
	}
}

func logError(logger Logger, ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if logger != nil {
		logger.ErrorWithContext(ctx, msg, err, fields)
	}
}
