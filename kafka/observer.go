package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// observeOperation safely calls the observer if it's not nil.
//
// Resource is the topic, or the group id for commits. A negative partition
// leaves SubResource empty, which is how whole-call operations are reported.
func observeOperation(observer observability.Observer, operation, resource string, partition int, duration time.Duration, err error, size int64) {
	if observer == nil {
		return
	}

	subResource := ""
	if partition >= 0 {
		subResource = strconv.Itoa(partition)
	}

	observer.ObserveOperation(observability.OperationContext{
		Component:   "kafka",
		Operation:   operation,
		Resource:    resource,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
	})
}

// logInfo and logWarn drop the entry when no logger is configured.
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
