package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// scriptedWorker runs handle for every Handle call and counts lifecycle calls.
type scriptedWorker struct {
	attempt   int
	setupErr  error
	handle    func(ctx context.Context, attempt, call int) error
	calls     int
	teardowns *atomic.Int32
}

func (w *scriptedWorker) Setup(context.Context) error { return w.setupErr }

func (w *scriptedWorker) Handle(ctx context.Context) error {
	w.calls++
	return w.handle(ctx, w.attempt, w.calls)
}

func (w *scriptedWorker) Teardown(context.Context) error {
	w.teardowns.Add(1)
	return nil
}

type harness struct {
	builds    atomic.Int32
	teardowns atomic.Int32
	reports   []*FailedError
	mu        sync.Mutex
}

func (h *harness) class(setupErr error, handle func(ctx context.Context, attempt, call int) error) Class {
	return Class{
		New: func(_ Spec, attempt int) (Worker, error) {
			h.builds.Add(1)
			return &scriptedWorker{attempt: attempt, setupErr: setupErr, handle: handle, teardowns: &h.teardowns}, nil
		},
	}
}

func (h *harness) reporter() Reporter {
	return ReporterFunc(func(_ context.Context, failure *FailedError) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.reports = append(h.reports, failure)
	})
}

func (h *harness) reported() []*FailedError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reports
}

type recordingObserver struct {
	mu     sync.Mutex
	events []observability.OperationContext
}

func (o *recordingObserver) ObserveOperation(ctx observability.OperationContext) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ctx)
}

func (o *recordingObserver) operations() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Operation)
	}
	return out
}

func fastSpec(name string, maxAttempts int) Spec {
	return Spec{Name: name, MaxAttempts: maxAttempts, SleepTime: time.Millisecond}
}

func TestSupervisorRespawnsAtMostMaxAttemptsMinusOne(t *testing.T) {
	t.Parallel()

	for _, maxAttempts := range []int{1, 2, 3, 5} {
		h := &harness{}
		boom := errors.New("boom")
		class := h.class(nil, func(context.Context, int, int) error { return boom })

		sup := NewSupervisor(fastSpec("failing", maxAttempts), class, WithReporter(h.reporter()))
		err := sup.Run(context.Background())

		var failed *FailedError
		require.ErrorAs(t, err, &failed)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, maxAttempts, failed.Attempts)
		assert.Equal(t, int32(maxAttempts), h.builds.Load(), "one build per attempt")
		assert.Equal(t, int32(maxAttempts), h.teardowns.Load(), "teardown after every attempt")
		assert.Len(t, h.reported(), 1, "only the final failure is reported")
		assert.Equal(t, StateStopped, sup.State())
	}
}

func TestSupervisorTerminalErrorStopsImmediately(t *testing.T) {
	t.Parallel()

	h := &harness{}
	missing := errors.New("topic missing")
	class := h.class(Terminal(missing), func(context.Context, int, int) error { return nil })

	err := NewSupervisor(fastSpec("terminal", 5), class, WithReporter(h.reporter())).Run(context.Background())

	require.ErrorIs(t, err, missing)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, int32(1), h.builds.Load())
	assert.Equal(t, int32(1), h.teardowns.Load())
	assert.Len(t, h.reported(), 1)
}

func TestSupervisorRecoversThenStopsOnShutdown(t *testing.T) {
	t.Parallel()

	h := &harness{}
	class := h.class(nil, func(ctx context.Context, attempt, call int) error {
		if attempt == 1 {
			return errors.New("transient")
		}
		if call == 3 {
			RequestShutdown(ctx)
		}
		return nil
	})

	sup := NewSupervisor(fastSpec("recovering", 3), class, WithReporter(h.reporter()))
	require.NoError(t, sup.Run(context.Background()))

	assert.Equal(t, int32(2), h.builds.Load())
	assert.Equal(t, int32(2), h.teardowns.Load())
	assert.Empty(t, h.reported())
	assert.Equal(t, StateStopped, sup.State())
}

func TestSupervisorRecoversPanics(t *testing.T) {
	t.Parallel()

	h := &harness{}
	class := h.class(nil, func(context.Context, int, int) error { panic("nil map") })

	err := NewSupervisor(fastSpec("panicking", 2), class, WithReporter(h.reporter())).Run(context.Background())

	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "nil map", p.Value)
	assert.NotEmpty(t, p.Stack)
	assert.Equal(t, int32(2), h.builds.Load())
}

func TestSupervisorContextCancellation(t *testing.T) {
	t.Parallel()

	h := &harness{}
	ctx, cancel := context.WithCancel(context.Background())
	class := h.class(nil, func(_ context.Context, _, call int) error {
		if call == 10 {
			cancel()
		}
		return nil
	})

	require.NoError(t, NewSupervisor(fastSpec("cancelled", 3), class).Run(ctx))
	assert.Equal(t, int32(1), h.teardowns.Load())
}

func TestSupervisorShutdownInterruptsRetrySleep(t *testing.T) {
	t.Parallel()

	h := &harness{}
	shutdown := NewShutdown()
	failed := make(chan struct{})
	var once sync.Once
	class := h.class(nil, func(context.Context, int, int) error {
		once.Do(func() { close(failed) })
		return errors.New("boom")
	})

	spec := Spec{Name: "sleepy", MaxAttempts: 3, SleepTime: time.Hour}
	done := make(chan error, 1)
	go func() {
		done <- NewSupervisor(spec, class, WithShutdown(shutdown), WithReporter(h.reporter())).Run(context.Background())
	}()

	<-failed
	shutdown.Trigger()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop while sleeping between attempts")
	}
	assert.Equal(t, int32(1), h.builds.Load())
	assert.Empty(t, h.reported())
}

func TestSupervisorConstructorErrors(t *testing.T) {
	t.Parallel()

	t.Run("build error is retried", func(t *testing.T) {
		t.Parallel()

		var builds atomic.Int32
		class := Class{New: func(Spec, int) (Worker, error) {
			builds.Add(1)
			return nil, errors.New("cannot connect")
		}}
		err := NewSupervisor(fastSpec("unbuildable", 2), class, WithReporter(ReporterFunc(func(context.Context, *FailedError) {}))).
			Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, int32(2), builds.Load())
	})

	t.Run("missing constructor is terminal", func(t *testing.T) {
		t.Parallel()

		err := NewSupervisor(fastSpec("empty", 3), Class{}, WithReporter(ReporterFunc(func(context.Context, *FailedError) {}))).
			Run(context.Background())
		require.ErrorIs(t, err, ErrInvalidClass)
		assert.True(t, IsTerminal(err))
	})
}

func TestSupervisorObserverEvents(t *testing.T) {
	t.Parallel()

	h := &harness{}
	obs := &recordingObserver{}
	class := h.class(nil, func(context.Context, int, int) error { return errors.New("boom") })

	_ = NewSupervisor(fastSpec("observed", 2), class, WithObserver(obs), WithReporter(h.reporter())).
		Run(context.Background())

	assert.Equal(t, []string{
		"attempt_started", "attempt_ended",
		"attempt_started", "attempt_ended",
		"worker_stopped",
	}, obs.operations())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	last := obs.events[len(obs.events)-1]
	assert.Equal(t, "worker", last.Component)
	assert.Equal(t, "observed", last.Resource)
	assert.Equal(t, "2", last.SubResource)
	assert.Error(t, last.Error)
}

func TestDecide(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name     string
		attempt  int
		max      int
		err      error
		expected RetryDecision
	}{
		{"retry first failure", 1, 3, boom, RetryDecision{ShouldRetry: true, NextAttempt: 2}},
		{"retry second failure", 2, 3, boom, RetryDecision{ShouldRetry: true, NextAttempt: 3}},
		{"exhausted", 3, 3, boom, RetryDecision{ShouldRetry: false, NextAttempt: 3}},
		{"terminal", 1, 3, Terminal(boom), RetryDecision{ShouldRetry: false, NextAttempt: 1}},
		{"single attempt", 1, 1, boom, RetryDecision{ShouldRetry: false, NextAttempt: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, decide(tt.attempt, tt.max, tt.err))
		})
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "tearing_down", StateTearingDown.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Terminal(nil))

	base := errors.New("bad config")
	err := Terminal(base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "bad config", err.Error())
	assert.True(t, IsTerminal(err))
	assert.False(t, IsTerminal(base))
}
