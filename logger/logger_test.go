package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level, tracingEnabled bool) (*LoggerClient, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewFromZap(zap.New(core), tracingEnabled), logs
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level    string
		expected zapcore.Level
	}{
		{Debug, zapcore.DebugLevel},
		{Info, zapcore.InfoLevel},
		{Warning, zapcore.WarnLevel},
		{Error, zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, parseLevel(tc.level))
		})
	}
}

func TestNewLoggerClient(t *testing.T) {
	t.Parallel()

	l := NewLoggerClient(Config{Level: Debug, ServiceName: "workers", EnableTracing: true})
	require.NotNil(t, l.Zap)
	assert.True(t, l.tracingEnabled)
	assert.True(t, l.Zap.Core().Enabled(zapcore.DebugLevel))
}

func TestConvertToZapFields(t *testing.T) {
	t.Parallel()
	l, _ := newObservedLogger(zapcore.DebugLevel, false)

	assert.Empty(t, l.convertToZapFields(nil))

	fields := l.convertToZapFields(errors.New("oops"), map[string]interface{}{"a": 1}, map[string]interface{}{"b": "x"})
	require.Len(t, fields, 3)
	assert.Equal(t, "error", fields[0].Key)
}

func TestLevels(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.InfoLevel, false)

	l.Debug("hidden", nil)
	l.Info("info", nil, map[string]interface{}{"worker": "a"})
	l.Warn("warn", nil)
	l.Error("error", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "a", entries[0].ContextMap()["worker"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestNamedAndWith(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.InfoLevel, false)

	child := l.Named("invoice-consumer").With(map[string]interface{}{"attempt": 2})
	child.Info("started", nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "invoice-consumer", entry.LoggerName)
	assert.EqualValues(t, 2, entry.ContextMap()["attempt"])
}

func TestWithContext_AddsTraceFields(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.DebugLevel, true)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "kafka:consume")
	defer span.End()

	l.InfoWithContext(ctx, "consumed", nil)
	l.DebugWithContext(context.Background(), "no span", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0].ContextMap()["span_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestWithContext_TracingDisabled(t *testing.T) {
	t.Parallel()
	l, logs := newObservedLogger(zapcore.DebugLevel, false)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.WarnWithContext(ctx, "warn", nil)
	l.ErrorWithContext(ctx, "error", errors.New("x"))

	for _, entry := range logs.All() {
		assert.NotContains(t, entry.ContextMap(), "trace_id")
	}
}

func TestLoggerClient_ImplementsLogger(t *testing.T) {
	t.Parallel()
	var _ Logger = &LoggerClient{}
}
