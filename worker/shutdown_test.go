package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdown(t *testing.T) {
	t.Parallel()

	s := NewShutdown()
	assert.False(t, s.Requested())

	s.Trigger()
	s.Trigger()
	assert.True(t, s.Requested())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Trigger")
	}
}

func TestRequestShutdownFromContext(t *testing.T) {
	t.Parallel()

	s := NewShutdown()
	ctx := ContextWithShutdown(context.Background(), s)
	assert.Same(t, s, ShutdownFrom(ctx))

	RequestShutdown(ctx)
	assert.True(t, s.Requested())

	assert.Nil(t, ShutdownFrom(context.Background()))
	RequestShutdown(context.Background())
}

func TestWait(t *testing.T) {
	t.Parallel()

	t.Run("sleeps the full duration", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		assert.True(t, Wait(context.Background(), 20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("returns early on shutdown", func(t *testing.T) {
		t.Parallel()

		s := NewShutdown()
		ctx := ContextWithShutdown(context.Background(), s)
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.Trigger()
		}()

		start := time.Now()
		assert.False(t, Wait(ctx, time.Hour))
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("returns immediately when already stopped", func(t *testing.T) {
		t.Parallel()

		s := NewShutdown()
		s.Trigger()
		assert.False(t, Wait(ContextWithShutdown(context.Background(), s), time.Hour))
	})

	t.Run("returns early on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.False(t, Wait(ctx, time.Hour))
		assert.False(t, Wait(ctx, 0))
	})
}
