package consumer

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aalemi-dev/kafka-workers/kafka"
	"github.com/aalemi-dev/kafka-workers/kafka/kafkatest"
	"github.com/aalemi-dev/kafka-workers/schema_registry"
	"github.com/aalemi-dev/kafka-workers/schema_registry/registrytest"
	"github.com/aalemi-dev/kafka-workers/worker"
)

const eventSchema = `{
	"type": "record",
	"name": "Event",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "timestamp", "type": "long"},
		{"name": "amount", "type": "string"},
		{"name": "active", "type": ["null", "int"], "default": null}
	]
}`

func testSpec() worker.Spec {
	return worker.Spec{
		Name:         "events",
		Topic:        "events",
		CommitPolicy: worker.CommitOnComplete,
		SleepTime:    5 * time.Millisecond,
	}
}

func newTestWorker(t *testing.T, cfg Config, spec worker.Spec, consumer *kafkatest.Consumer) (*Worker, *kafkatest.Factory) {
	t.Helper()

	factory := kafkatest.NewFactory(consumer, nil)
	cfg.Factory = factory
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "localhost:9092"
	}
	w := New(cfg, spec, 1)
	require.NoError(t, w.Setup(context.Background()))
	return w, factory
}

func TestHandleNilPollWaitsWithoutDispatch(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{}
	consumer := kafkatest.NewConsumer(nil)
	w, _ := newTestWorker(t, Config{Handler: handler}, testSpec(), consumer)

	start := time.Now()
	require.NoError(t, w.Handle(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond, "idle poll sleeps")
	assert.Equal(t, 1, consumer.Polls())
	assert.Zero(t, handler.count())
	assert.Empty(t, consumer.Commits())
}

func TestHandleCommitsOnlyAfterSuccess(t *testing.T) {
	t.Parallel()

	t.Run("handler error leaves offset uncommitted", func(t *testing.T) {
		t.Parallel()

		handler := &recordingHandler{err: errors.New("downstream unavailable")}
		consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 7, nil, []byte("a")))
		w, _ := newTestWorker(t, Config{Handler: handler}, testSpec(), consumer)

		err := w.Handle(context.Background())
		require.ErrorIs(t, err, handler.err)
		assert.Equal(t, 1, handler.count())
		assert.Empty(t, consumer.Commits())
	})

	t.Run("success commits asynchronously by default", func(t *testing.T) {
		t.Parallel()

		handler := &recordingHandler{}
		consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 7, nil, []byte("a")))
		w, _ := newTestWorker(t, Config{Handler: handler}, testSpec(), consumer)

		require.NoError(t, w.Handle(context.Background()))
		commits := consumer.Commits()
		require.Len(t, commits, 1)
		assert.True(t, commits[0].Async)
		assert.Equal(t, []kafka.TopicPartition{{Topic: "events", Partition: 0, Offset: 8}}, commits[0].Offsets)
	})

	t.Run("sync commit", func(t *testing.T) {
		t.Parallel()

		consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 1, nil, []byte("a")))
		w, _ := newTestWorker(t, Config{Handler: &recordingHandler{}, SyncCommit: true}, testSpec(), consumer)

		require.NoError(t, w.Handle(context.Background()))
		require.Len(t, consumer.Commits(), 1)
		assert.False(t, consumer.Commits()[0].Async)
	})

	t.Run("auto commit settings skip explicit commits", func(t *testing.T) {
		t.Parallel()

		spec := testSpec()
		spec.Settings = map[string]any{"enable.auto.commit": true}
		consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 1, nil, []byte("a")))
		w, _ := newTestWorker(t, Config{Handler: &recordingHandler{}}, spec, consumer)

		require.NoError(t, w.Handle(context.Background()))
		assert.Empty(t, consumer.Commits())
	})

	t.Run("auto commit policy", func(t *testing.T) {
		t.Parallel()

		spec := testSpec()
		spec.CommitPolicy = worker.CommitAuto
		consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 1, nil, []byte("a")))
		w, _ := newTestWorker(t, Config{Handler: &recordingHandler{}}, spec, consumer)

		require.NoError(t, w.Handle(context.Background()))
		assert.Empty(t, consumer.Commits())
	})
}

func TestHandleEvents(t *testing.T) {
	t.Parallel()

	t.Run("partition eof reaches the handler", func(t *testing.T) {
		t.Parallel()

		handler := &recordingHandler{}
		consumer := kafkatest.NewConsumer(kafkatest.EOFEvent("events", 2, 42))
		w, _ := newTestWorker(t, Config{Handler: handler}, testSpec(), consumer)

		require.NoError(t, w.Handle(context.Background()))
		assert.Equal(t, []PartitionEnd{{Topic: "events", Partition: 2, Offset: 42}}, handler.ends)
		assert.Zero(t, handler.count())
		assert.Empty(t, consumer.Commits())
	})

	t.Run("partition eof without a hook is ignored", func(t *testing.T) {
		t.Parallel()

		handler := HandlerFunc(func(context.Context, *Message) error { return nil })
		consumer := kafkatest.NewConsumer(kafkatest.EOFEvent("events", 0, 1))
		w, _ := newTestWorker(t, Config{Handler: handler}, testSpec(), consumer)

		assert.NoError(t, w.Handle(context.Background()))
	})

	t.Run("transport error is fatal", func(t *testing.T) {
		t.Parallel()

		consumer := kafkatest.NewConsumer(kafkatest.ErrorEvent(kafka.ErrBrokerNotAvailable))
		w, _ := newTestWorker(t, Config{Handler: &recordingHandler{}}, testSpec(), consumer)

		err := w.Handle(context.Background())
		var fatal *kafka.FatalError
		require.ErrorAs(t, err, &fatal)
		assert.ErrorIs(t, err, kafka.ErrBrokerNotAvailable)
		assert.False(t, worker.IsTerminal(err))
	})
}

func TestSetup(t *testing.T) {
	t.Parallel()

	t.Run("missing topic is terminal", func(t *testing.T) {
		t.Parallel()

		spec := testSpec()
		spec.Topic = ""
		w := New(Config{Handler: &recordingHandler{}, BrokerURL: "localhost:9092", Factory: kafkatest.NewFactory(nil, nil)}, spec, 1)

		err := w.Setup(context.Background())
		require.ErrorIs(t, err, ErrMissingConfig)
		assert.True(t, worker.IsTerminal(err))
	})

	t.Run("missing brokers is terminal", func(t *testing.T) {
		t.Parallel()

		w := New(Config{Handler: &recordingHandler{}, Factory: kafkatest.NewFactory(nil, nil)}, testSpec(), 1)

		err := w.Setup(context.Background())
		require.ErrorIs(t, err, ErrMissingConfig)
		assert.True(t, worker.IsTerminal(err))
	})

	t.Run("subscribes and merges settings", func(t *testing.T) {
		t.Parallel()

		spec := testSpec()
		spec.Settings = map[string]any{"topic.auto.offset.reset": "latest", "fetch.wait.max.ms": 50}
		consumer := kafkatest.NewConsumer()
		w, factory := newTestWorker(t, Config{Handler: &recordingHandler{}, ConsumerName: "billing"}, spec, consumer)

		assert.Equal(t, []string{"events"}, consumer.Subscribed())
		require.Len(t, factory.ConsumerSettings(), 1)

		settings := factory.ConsumerSettings()[0]
		assert.Equal(t, "billing", settings["group.id"])
		assert.Equal(t, false, settings["enable.auto.commit"])
		assert.Equal(t, "localhost:9092", settings["bootstrap.servers"])
		assert.Equal(t, DefaultSessionTimeoutMs, settings["session.timeout.ms"])
		assert.Equal(t, 50, settings["fetch.wait.max.ms"])
		assert.Equal(t, map[string]any{"auto.offset.reset": "latest"}, settings[kafka.TopicConfigKey])

		require.NoError(t, w.Teardown(context.Background()))
		assert.Equal(t, 1, consumer.Closes())
	})

	t.Run("consumer group overrides the consumer name", func(t *testing.T) {
		t.Parallel()

		spec := testSpec()
		spec.ConsumerGroup = "orders-group"
		w := New(Config{Handler: &recordingHandler{}, ConsumerName: "ignored"}, spec, 1)
		assert.Equal(t, "orders-group", w.Settings().String("group.id"))
	})

	t.Run("random consumer name", func(t *testing.T) {
		t.Parallel()

		w := New(Config{Handler: &recordingHandler{}}, testSpec(), 1)
		assert.Contains(t, w.Settings().String("group.id"), consumerNamePrefix)
	})
}

func TestStartPositions(t *testing.T) {
	t.Parallel()

	t.Run("beginning seeks first offsets", func(t *testing.T) {
		t.Parallel()

		consumer := kafkatest.NewConsumer()
		consumer.PartitionIDs = map[string][]int{"events": {0, 1}}
		_, factory := newTestWorker(t, StartAtBeginning(Config{Handler: &recordingHandler{}}), testSpec(), consumer)

		assert.Equal(t, [][]kafka.TopicPartition{{
			{Topic: "events", Partition: 0, Offset: kafka.FirstOffset},
			{Topic: "events", Partition: 1, Offset: kafka.FirstOffset},
		}}, consumer.Seeks())
		assert.Empty(t, consumer.Assigns(), "group membership is kept")
		assert.Equal(t, map[string]any{"auto.offset.reset": "earliest"}, factory.ConsumerSettings()[0][kafka.TopicConfigKey])
	})

	t.Run("end seeks last offsets", func(t *testing.T) {
		t.Parallel()

		consumer := kafkatest.NewConsumer()
		_, factory := newTestWorker(t, StartAtEnd(Config{Handler: &recordingHandler{}}), testSpec(), consumer)

		assert.Equal(t, [][]kafka.TopicPartition{{{Topic: "events", Partition: 0, Offset: kafka.LastOffset}}}, consumer.Seeks())
		assert.Equal(t, map[string]any{"auto.offset.reset": "latest"}, factory.ConsumerSettings()[0][kafka.TopicConfigKey])
	})

	t.Run("timestamp resolves offsets for times", func(t *testing.T) {
		t.Parallel()

		consumer := kafkatest.NewConsumer()
		at := time.UnixMilli(1700000000000)
		newTestWorker(t, StartAt(Config{Handler: &recordingHandler{}}, at), testSpec(), consumer)

		assert.Equal(t, [][]kafka.TopicPartition{{{Topic: "events", Partition: 0, Offset: 1700000000}}}, consumer.Seeks())
	})

	t.Run("timestamp without a time is terminal", func(t *testing.T) {
		t.Parallel()

		cfg := Config{Handler: &recordingHandler{}, StartPosition: StartTimestamp, BrokerURL: "localhost:9092", Factory: kafkatest.NewFactory(nil, nil)}
		err := New(cfg, testSpec(), 1).Setup(context.Background())
		assert.True(t, worker.IsTerminal(err))
	})

	t.Run("reset reuses the current assignment", func(t *testing.T) {
		t.Parallel()

		consumer := kafkatest.NewConsumer()
		w, _ := newTestWorker(t, Config{Handler: &recordingHandler{}}, testSpec(), consumer)
		require.NoError(t, consumer.Assign(context.Background(), []kafka.TopicPartition{{Topic: "events", Partition: 3, Offset: 10}}))

		require.NoError(t, w.ResetOffsets(context.Background(), Beginning))
		assert.Equal(t, [][]kafka.TopicPartition{{{Topic: "events", Partition: 3, Offset: kafka.FirstOffset}}}, consumer.Seeks())

		positions, err := w.Positions(context.Background())
		require.NoError(t, err)
		assert.Len(t, positions, 1)
	})
}

func TestStartPositionStaysInsideGroupShare(t *testing.T) {
	t.Parallel()

	// Two instances of one registration share a group and must each reset only
	// the partitions the group gave them.
	group := kafkatest.NewGroup(2)
	consumers := make([]*kafkatest.Consumer, 2)
	workers := make([]*Worker, 2)
	for i := range workers {
		consumers[i] = kafkatest.NewConsumer()
		consumers[i].PartitionIDs = map[string][]int{"events": {0, 1, 2, 3}}
		consumers[i].Group = group
		cfg := StartAtBeginning(Config{
			Handler:   &recordingHandler{},
			BrokerURL: "localhost:9092",
			Factory:   kafkatest.NewFactory(consumers[i], nil),
		})
		workers[i] = New(cfg, testSpec(), 1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error { return w.Setup(ctx) })
	}
	require.NoError(t, g.Wait())

	partitionsOf := func(consumer *kafkatest.Consumer) []int {
		seeks := consumer.Seeks()
		require.Len(t, seeks, 1)
		ids := make([]int, 0, len(seeks[0]))
		for _, tp := range seeks[0] {
			assert.Equal(t, kafka.FirstOffset, tp.Offset)
			ids = append(ids, tp.Partition)
		}
		return ids
	}

	first, second := partitionsOf(consumers[0]), partitionsOf(consumers[1])
	assert.Len(t, first, 2)
	assert.Len(t, second, 2)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, append(slices.Clone(first), second...))
	for _, consumer := range consumers {
		assert.Empty(t, consumer.Assigns(), "no member takes every partition")
	}
}

func TestDecodeAndNormalize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	registry := registrytest.NewMemory()
	schemaID := registry.Add("events-value", eventSchema)
	payload, err := schema_registry.NewCodec(registry).Encode(ctx, schemaID, map[string]any{
		"id":        "evt-1",
		"timestamp": int64(1700000000),
		"amount":    "12.50",
		"active":    map[string]any{"int": int32(1)},
	})
	require.NoError(t, err)

	handler := &recordingHandler{}
	consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 1, 3, []byte("evt-1"), payload,
		kafka.Header{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")}))
	tr := &fakeTracer{}
	cfg := Config{
		Handler:  handler,
		Registry: registry,
		Tracer:   tr,
		Normalization: Normalization{
			TimestampFields: []string{"timestamp"},
			DecimalFields:   []string{"amount"},
			BooleanFields:   []string{"active", "missing"},
		},
	}
	w, _ := newTestWorker(t, cfg, testSpec(), consumer)

	require.NoError(t, w.Handle(ctx))
	require.Equal(t, 1, handler.count())

	msg := handler.messages[0]
	assert.Equal(t, schemaID, msg.SchemaID())
	assert.Equal(t, "evt-1", string(msg.Key()))
	assert.Equal(t, []byte("evt-1"), msg.DecodedKey(), "plain keys stay raw")

	ts, ok := msg.Field("timestamp")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), ts)

	amount, _ := msg.Field("amount")
	assert.True(t, decimal.RequireFromString("12.5").Equal(amount.(decimal.Decimal)))

	active, _ := msg.Field("active")
	assert.Equal(t, true, active)

	_, ok = msg.Field("missing")
	assert.False(t, ok)

	require.Len(t, tr.spans, 1)
	assert.Equal(t, "kafka:consume", tr.spans[0].name)
	assert.Equal(t, "events", tr.spans[0].attrs["messaging.destination.name"])
	assert.Equal(t, "evt-1", tr.spans[0].attrs["key"])
	assert.True(t, tr.spans[0].ended)
	require.Len(t, tr.carriers, 1)
	assert.Contains(t, tr.carriers[0], "traceparent")
}

func TestTimestampFieldDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		normalization Normalization
		want          any
	}{
		{
			name:          "unset normalizes the timestamp field",
			normalization: Normalization{DecimalFields: []string{"amount"}},
			want:          time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		},
		{
			name:          "empty list keeps the raw value",
			normalization: Normalization{TimestampFields: []string{}},
			want:          int64(1700000000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			registry := registrytest.NewMemory()
			schemaID := registry.Add("events-value", eventSchema)
			payload, err := schema_registry.NewCodec(registry).Encode(ctx, schemaID, map[string]any{
				"id":        "evt-1",
				"timestamp": int64(1700000000),
				"amount":    "1",
				"active":    nil,
			})
			require.NoError(t, err)

			handler := &recordingHandler{}
			consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 0, nil, payload))
			w, _ := newTestWorker(t, Config{Handler: handler, Registry: registry, Normalization: tt.normalization}, testSpec(), consumer)

			require.NoError(t, w.Handle(ctx))
			require.Equal(t, 1, handler.count())
			ts, ok := handler.messages[0].Field("timestamp")
			require.True(t, ok)
			assert.Equal(t, tt.want, ts)
		})
	}
}

func TestDecodeFailureIsInvalidData(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{}
	consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 0, nil, []byte("not avro")))
	w, _ := newTestWorker(t, Config{Handler: handler, Registry: registrytest.NewMemory()}, testSpec(), consumer)

	err := w.Handle(context.Background())
	require.ErrorIs(t, err, ErrInvalidData)
	assert.Zero(t, handler.count())
	assert.Empty(t, consumer.Commits())
}

func TestHandlerErrorRecordedOnSpan(t *testing.T) {
	t.Parallel()

	tr := &fakeTracer{}
	handler := &recordingHandler{err: errors.New("boom")}
	consumer := kafkatest.NewConsumer(kafkatest.MessageEvent("events", 0, 0, nil, []byte("raw")))
	w, _ := newTestWorker(t, Config{Handler: handler, Tracer: tr}, testSpec(), consumer)

	require.Error(t, w.Handle(context.Background()))
	require.Len(t, tr.spans, 1)
	assert.Equal(t, []error{handler.err}, tr.spans[0].errs)
	assert.NotContains(t, tr.spans[0].attrs, "key")
}

func TestSupervisedConsumerNeverCommitsFailures(t *testing.T) {
	t.Parallel()

	consumer := kafkatest.NewConsumer(
		kafkatest.MessageEvent("events", 0, 0, nil, []byte("a")),
		kafkatest.MessageEvent("events", 0, 0, nil, []byte("a")),
		kafkatest.MessageEvent("events", 0, 0, nil, []byte("a")),
	)
	handler := &recordingHandler{err: errors.New("always fails")}

	spec := testSpec()
	spec.MaxAttempts = 3
	class := NewClass(Config{
		Spec:      spec,
		Handler:   handler,
		BrokerURL: "localhost:9092",
		Factory:   kafkatest.NewFactory(consumer, nil),
	})

	err := worker.NewSupervisor(spec, class, worker.WithReporter(worker.ReporterFunc(func(context.Context, *worker.FailedError) {}))).
		Run(context.Background())

	var failed *worker.FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, 3, handler.count())
	assert.Empty(t, consumer.Commits())
	assert.Equal(t, 3, consumer.Closes())
}
