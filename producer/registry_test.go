package producer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalemi-dev/kafka-workers/kafka/kafkatest"
)

func countingConstructor(calls *atomic.Int32, backend *kafkatest.Producer) Constructor {
	return func(cfg Config) (*Producer, error) {
		calls.Add(1)
		cfg.BrokerURL = "localhost:9092"
		cfg.Factory = kafkatest.NewFactory(nil, backend)
		return New(cfg)
	}
}

func TestRegistryGetIsLazySingleton(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	registry := NewRegistry()
	require.NoError(t, registry.Register("orders", countingConstructor(&calls, kafkatest.NewProducer()), Config{Topic: "orders"}))
	assert.Zero(t, calls.Load(), "nothing is built on register")

	ctx := context.Background()
	var wg sync.WaitGroup
	got := make([]*Producer, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := registry.Get(ctx, "orders")
			assert.NoError(t, err)
			got[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, p := range got {
		assert.Same(t, got[0], p)
	}
	assert.Equal(t, "orders", got[0].Name())
	require.NoError(t, registry.CloseAll(ctx))
}

func TestRegistryErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	registry := NewRegistry()
	require.NoError(t, registry.Register("orders", nil, Config{Topic: "orders"}))

	err := registry.Register("orders", nil, Config{Topic: "orders"})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = registry.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotRegistered)

	assert.ErrorIs(t, registry.Unregister(ctx, "missing"), ErrNotRegistered)
}

func TestRegistryFailedBuildIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	boom := errors.New("registry unreachable")
	registry := NewRegistry()
	require.NoError(t, registry.Register("orders", func(cfg Config) (*Producer, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		cfg.BrokerURL = "localhost:9092"
		cfg.Factory = kafkatest.NewFactory(nil, nil)
		return New(cfg)
	}, Config{Topic: "orders"}))

	ctx := context.Background()
	_, err := registry.Get(ctx, "orders")
	require.ErrorIs(t, err, boom)

	p, err := registry.Get(ctx, "orders")
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, int32(2), calls.Load())
	require.NoError(t, registry.CloseAll(ctx))
}

func TestRegistryUnregisterClosesInstance(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	backend := kafkatest.NewProducer()
	registry := NewRegistry()
	require.NoError(t, registry.Register("orders", countingConstructor(&calls, backend), Config{Topic: "orders"}))
	require.NoError(t, registry.Register("audit", countingConstructor(&calls, kafkatest.NewProducer()), Config{Topic: "audit"}))
	assert.Equal(t, []string{"orders", "audit"}, registry.Names())

	ctx := context.Background()
	_, err := registry.Get(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, registry.Unregister(ctx, "orders"))
	assert.True(t, backend.Closed())
	assert.Equal(t, []string{"audit"}, registry.Names())

	require.NoError(t, registry.Unregister(ctx, "audit"), "unbuilt producers unregister without closing")
	assert.Empty(t, registry.Names())
}

func TestRegistryCloseAll(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	first, second := kafkatest.NewProducer(), kafkatest.NewProducer()
	registry := NewRegistry().WithDefaults(func(cfg Config) Config {
		cfg.Sync = true
		return cfg
	})
	require.NoError(t, registry.Register("first", countingConstructor(&calls, first), Config{Topic: "first"}))
	require.NoError(t, registry.Register("second", countingConstructor(&calls, second), Config{Topic: "second"}))

	ctx := context.Background()
	p, err := registry.Get(ctx, "first")
	require.NoError(t, err)
	require.NoError(t, p.SendMessage(ctx, nil, "v"), "defaults applied before construction")
	assert.Len(t, first.Records(), 1)

	require.NoError(t, registry.CloseAll(ctx))
	assert.True(t, first.Closed())
	assert.False(t, second.Closed(), "never built")

	again, err := registry.Get(ctx, "first")
	require.NoError(t, err)
	assert.NotSame(t, p, again)
	require.NoError(t, registry.CloseAll(ctx))
}
