package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aalemi-dev/kafka-workers/observability"
)

// Option configures a Supervisor or a Launcher.
type Option func(*options)

// options are shared by a Launcher and every supervisor it starts.
type options struct {
	// shutdown is never nil after buildOptions
	shutdown *Shutdown
	reporter Reporter
	logger   Logger
	observer observability.Observer
}

// WithShutdown sets the shared stop flag. Without it each supervisor gets its own.
func WithShutdown(s *Shutdown) Option {
	return func(o *options) { o.shutdown = s }
}

// WithReporter sets where final failures go. Defaults to a LogReporter on the logger.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the observer notified of attempts and stops.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// buildOptions applies opts and fills the shutdown flag and reporter.
func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.shutdown == nil {
		o.shutdown = NewShutdown()
	}
	if o.reporter == nil {
		o.reporter = &LogReporter{Logger: o.logger}
	}
	return o
}

// Supervisor drives one worker through setup, the handle loop and teardown, building
// a new instance for every attempt until the worker stops.
type Supervisor struct {
	// spec has defaults applied and is shared by every attempt
	spec  Spec
	class Class

	// id tells apart supervisors of the same worker name in logs
	id   string
	opts options

	mu    sync.Mutex
	state State
}

// NewSupervisor returns a supervisor for spec, which should already hold the class
// defaults. Missing limits fall back to DefaultMaxAttempts and DefaultSleepTime.
//
// Parameters:
//   - spec: The merged spec of the instance
//   - class: Builds a fresh Worker for every attempt
//   - opts: Shutdown flag, reporter, logger and observer
//
// Returns:
//   - *Supervisor: A supervisor in StateCreated
//
// Example:
//
//	sup := worker.NewSupervisor(spec, class, worker.WithLogger(log))
//	if err := sup.Run(ctx); err != nil {
//	    var failed *worker.FailedError
//	    errors.As(err, &failed)
//	}
func NewSupervisor(spec Spec, class Class, opts ...Option) *Supervisor {
	return &Supervisor{
		spec:  spec.withDefaults(),
		class: class,
		id:    uuid.NewString(),
		opts:  buildOptions(opts),
		state: StateCreated,
	}
}

// Spec returns the spec the worker runs with.
func (s *Supervisor) Spec() Spec {
	return s.spec
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run blocks until the worker stops. It returns nil when the worker was stopped by
// the shutdown flag or ctx, and a *FailedError when attempts ran out or a terminal
// error occurred. Teardown runs after every attempt.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx = ContextWithShutdown(ctx, s.opts.shutdown)
	attempt := 1

	for {
		instance, err := s.runAttempt(ctx, attempt)
		if err == nil {
			s.setState(StateTearingDown)
			s.teardown(ctx, instance, attempt)
			s.stop(ctx, attempt, nil)
			return nil
		}

		decision := decide(attempt, s.spec.MaxAttempts, err)
		if !decision.ShouldRetry {
			s.setState(StateTearingDown)
			s.teardown(ctx, instance, attempt)

			failure := &FailedError{Worker: s.spec.Name, Attempts: attempt, Err: err}
			s.opts.reporter.Report(ctx, failure)
			s.stop(ctx, attempt, failure)
			return failure
		}

		s.setState(StateRetrying)
		logWarn(s.opts.logger, ctx, "Worker attempt failed, retrying", err, s.fields(attempt, map[string]interface{}{
			"next_attempt": decision.NextAttempt,
			"sleep":        s.spec.SleepTime.String(),
		}))
		s.teardown(ctx, instance, attempt)

		if !Wait(ctx, s.spec.SleepTime) {
			s.stop(ctx, attempt, nil)
			return nil
		}
		attempt = decision.NextAttempt
	}
}

// runAttempt returns nil once the worker should stop cleanly, or the attempt's error.
// The instance is returned whenever one was built so it can be torn down.
func (s *Supervisor) runAttempt(ctx context.Context, attempt int) (Worker, error) {
	start := time.Now()
	observe(s.opts.observer, "attempt_started", s.spec.Name, attempt, 0, nil)
	logInfo(s.opts.logger, ctx, "Worker attempt started", s.fields(attempt, nil))

	instance, err := s.run(ctx, attempt)
	observe(s.opts.observer, "attempt_ended", s.spec.Name, attempt, time.Since(start), err)
	return instance, err
}

// run builds the instance, runs Setup and calls Handle until shutdown.
func (s *Supervisor) run(ctx context.Context, attempt int) (Worker, error) {
	if s.stopping(ctx) {
		return nil, nil
	}

	s.setState(StateSetup)
	instance, err := s.build(attempt)
	if err != nil {
		return nil, err
	}
	if err := protect(func() error { return instance.Setup(ctx) }); err != nil {
		return instance, fmt.Errorf("setup: %w", err)
	}

	s.setState(StateRunning)
	for !s.stopping(ctx) {
		if err := protect(func() error { return instance.Handle(ctx) }); err != nil {
			return instance, err
		}
		// Handle may return without blocking, as with an empty poll
		runtime.Gosched()
	}
	return instance, nil
}

// build calls the class constructor. A nil class constructor or a nil worker is
// terminal since retrying cannot fix it.
func (s *Supervisor) build(attempt int) (instance Worker, err error) {
	if s.class.New == nil {
		return nil, Terminal(ErrInvalidClass)
	}
	err = protect(func() error {
		var buildErr error
		instance, buildErr = s.class.New(s.spec, attempt)
		return buildErr
	})
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	if instance == nil {
		return nil, Terminal(fmt.Errorf("build: %w", ErrInvalidClass))
	}
	return instance, nil
}

// teardown runs even after ctx was cancelled, so connections are always released.
// Its error is only logged.
func (s *Supervisor) teardown(ctx context.Context, instance Worker, attempt int) {
	if instance == nil {
		return
	}
	err := protect(func() error { return instance.Teardown(context.WithoutCancel(ctx)) })
	if err != nil {
		logWarn(s.opts.logger, ctx, "Worker teardown failed", err, s.fields(attempt, nil))
	}
}

// stop enters StateStopped and reports the outcome.
func (s *Supervisor) stop(ctx context.Context, attempt int, failure *FailedError) {
	s.setState(StateStopped)

	var err error
	if failure != nil {
		err = failure
		logError(s.opts.logger, ctx, "Worker stopped after unrecoverable error", failure.Err, s.fields(attempt, nil))
	} else {
		logInfo(s.opts.logger, ctx, "Worker stopped", s.fields(attempt, nil))
	}
	observe(s.opts.observer, "worker_stopped", s.spec.Name, attempt, 0, err)
}

func (s *Supervisor) stopping(ctx context.Context) bool {
	return s.opts.shutdown.Requested() || ctx.Err() != nil
}

// fields returns the log fields of an attempt merged with extra.
func (s *Supervisor) fields(attempt int, extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"worker":       s.spec.Name,
		"worker_id":    s.id,
		"attempt":      attempt,
		"max_attempts": s.spec.MaxAttempts,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

// decide retries every non-terminal failure while attempts remain.
func decide(attempt, maxAttempts int, err error) RetryDecision {
	if err == nil || IsTerminal(err) || attempt >= maxAttempts {
		return RetryDecision{ShouldRetry: false, NextAttempt: attempt}
	}
	return RetryDecision{ShouldRetry: true, NextAttempt: attempt + 1}
}

// protect converts a panic in fn into a *PanicError.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// LogReporter logs final failures at error level.
type LogReporter struct {
	// Logger receives the failures. A nil Logger drops them.
	Logger Logger
}

// Report logs failure with the worker name and attempt count, and the stack trace
// when the worker panicked.
func (r *LogReporter) Report(ctx context.Context, failure *FailedError) {
	fields := map[string]interface{}{
		"worker":   failure.Worker,
		"attempts": failure.Attempts,
	}
	var p *PanicError
	if errors.As(failure.Err, &p) {
		fields["stack"] = string(p.Stack)
	}
	logError(r.Logger, ctx, "Worker failed", failure.Err, fields)
}
