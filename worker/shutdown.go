package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Shutdown is the process-wide stop flag. Any worker or the launcher may trigger it;
// supervisors check it between Handle calls.
type Shutdown struct {
	requested atomic.Bool
	once      sync.Once

	// done is closed by the first Trigger
	done chan struct{}
}

// NewShutdown returns an untriggered flag.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Trigger sets the flag. Safe to call more than once.
func (s *Shutdown) Trigger() {
	s.once.Do(func() {
		s.requested.Store(true)
		close(s.done)
	})
}

// Requested reports whether Trigger was called.
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// Done is closed when Trigger is called.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

// shutdownKey is the context key of the flag.
type shutdownKey struct{}

// ContextWithShutdown returns ctx carrying s. Supervisors pass such a context to every
// Setup, Handle and Teardown call.
func ContextWithShutdown(ctx context.Context, s *Shutdown) context.Context {
	return context.WithValue(ctx, shutdownKey{}, s)
}

// ShutdownFrom returns the flag carried by ctx, or nil.
func ShutdownFrom(ctx context.Context) *Shutdown {
	s, _ := ctx.Value(shutdownKey{}).(*Shutdown)
	return s
}

// RequestShutdown triggers the flag carried by ctx, stopping every worker of the
// cohort after its current unit of work.
func RequestShutdown(ctx context.Context) {
	if s := ShutdownFrom(ctx); s != nil {
		s.Trigger()
	}
}

// Wait sleeps for d. It returns false when woken early by the shutdown flag in ctx
// or by ctx itself.
func Wait(ctx context.Context, d time.Duration) bool {
	var stop <-chan struct{}
	if s := ShutdownFrom(ctx); s != nil {
		if s.Requested() {
			return false
		}
		stop = s.Done()
	}
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}
