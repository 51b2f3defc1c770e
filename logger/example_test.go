package logger_test

import (
	"errors"

	"github.com/aalemi-dev/kafka-workers/logger"
)

func ExampleNewLoggerClient() {
	log := logger.NewLoggerClient(logger.Config{
		Level:       logger.Info,
		ServiceName: "example-workers",
	})

	log.Info("launcher started", nil)
}

func ExampleLoggerClient_Named() {
	log := logger.NewLoggerClient(logger.Config{Level: logger.Info, ServiceName: "example-workers"})

	workerLog := log.Named("invoice-consumer")
	workerLog.Error("handle failed", errors.New("decode error"), map[string]interface{}{
		"attempt": 2,
		"topic":   "invoices",
	})
}
