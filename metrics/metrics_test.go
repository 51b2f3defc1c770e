package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/aalemi-dev/kafka-workers/logger"
	"github.com/aalemi-dev/kafka-workers/metrics"
	"github.com/aalemi-dev/kafka-workers/observability"
)

func newAppMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	return metrics.NewMetrics(metrics.Config{
		ServiceName:               t.Name(),
		SystemMetricsAddress:      metrics.Ptr(""),
		ApplicationMetricsAddress: metrics.Ptr(":0"),
	})
}

func TestNewMetrics_Endpoints(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		system     *string
		app        *string
		wantSystem bool
		wantApp    bool
	}{
		{"defaults", nil, nil, true, true},
		{"system disabled", metrics.Ptr(""), nil, false, true},
		{"both disabled", metrics.Ptr(""), metrics.Ptr(""), false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := metrics.NewMetrics(metrics.Config{SystemMetricsAddress: tc.system, ApplicationMetricsAddress: tc.app})

			assert.Equal(t, tc.wantSystem, m.SystemServer != nil)
			assert.Equal(t, tc.wantSystem, m.SystemRegistry != nil)
			assert.Equal(t, tc.wantApp, m.ApplicationServer != nil)
			assert.NotNil(t, m.ApplicationRegistry, "application metrics are collected even when not served")
		})
	}

	m := metrics.NewMetrics(metrics.Config{})
	assert.Equal(t, metrics.DefaultSystemMetricsAddress, m.SystemServer.Addr)
	assert.Equal(t, metrics.DefaultApplicationMetricsAddress, m.ApplicationServer.Addr)
}

func TestCollector_CreateMetrics(t *testing.T) {
	t.Parallel()
	m := newAppMetrics(t)

	counter := m.CreateCounter("test_counter_total", "help", []string{"worker"})
	counter.WithLabelValues("a").Inc()
	counter.WithLabelValues("a").Add(2)

	gauge := m.CreateGauge("test_gauge", "help", []string{"worker"})
	g := gauge.WithLabelValues("a")
	g.Set(5)
	g.Inc()
	g.Sub(2)

	hist := m.CreateHistogram("test_seconds", "help", []string{"op"}, nil)
	hist.WithLabelValues("poll").Observe(0.1)

	count, err := testutil.GatherAndCount(m.ApplicationRegistry, "test_counter_total", "test_gauge", "test_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestOperationObserver_RecordsOperations(t *testing.T) {
	t.Parallel()
	m := newAppMetrics(t)
	obs := metrics.NewOperationObserver(m)

	obs.ObserveOperation(observability.OperationContext{
		Component: "producer", Operation: "produce", Resource: "invoices",
		Duration: 5 * time.Millisecond, Size: 128,
	})
	obs.ObserveOperation(observability.OperationContext{
		Component: "producer", Operation: "produce", Resource: "invoices",
		Error: errors.New("broker down"),
	})

	count, err := testutil.GatherAndCount(m.ApplicationRegistry, metrics.DefaultNamespace+"_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per status")

	count, err = testutil.GatherAndCount(m.ApplicationRegistry, metrics.DefaultNamespace+"_operation_bytes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOperationObserver_TracksWorkers(t *testing.T) {
	t.Parallel()
	m := newAppMetrics(t)
	obs := metrics.NewOperationObserver(m)

	for _, op := range []string{"attempt_started", "attempt_ended", "attempt_started"} {
		obs.ObserveOperation(observability.OperationContext{Component: "worker", Operation: op, Resource: "w"})
	}
	obs.ObserveOperation(observability.OperationContext{
		Component: "worker", Operation: "worker_stopped", Resource: "w", Error: errors.New("exhausted"),
	})

	families, err := m.ApplicationRegistry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, values[metrics.DefaultNamespace+"_workers_running"])
	assert.Equal(t, 2.0, values[metrics.DefaultNamespace+"_worker_attempts_total"])
	assert.Equal(t, 1.0, values[metrics.DefaultNamespace+"_worker_failures_total"])
}

func TestFXModule_ProvidesObserver(t *testing.T) {
	t.Parallel()
	var (
		collector metrics.MetricsCollector
		observer  observability.Observer
	)

	app := fxtest.New(t,
		metrics.FXModule,
		fx.Supply(metrics.Config{
			ServiceName:               "fx-test",
			SystemMetricsAddress:      metrics.Ptr(""),
			ApplicationMetricsAddress: metrics.Ptr("127.0.0.1:0"),
		}),
		fx.Provide(func() *logger.LoggerClient {
			return logger.NewLoggerClient(logger.Config{Level: logger.Error})
		}),
		fx.Populate(&collector, &observer),
	)

	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, collector)
	require.IsType(t, &metrics.OperationObserver{}, observer)
}
