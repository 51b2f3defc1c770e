package worker

import (
	"context"
)

// Worker is one attempt of a supervised worker. The supervisor builds a fresh Worker
// for every attempt, so implementations keep no state across attempts.
type Worker interface {
	// Setup opens connections. Errors wrapped with Terminal stop the worker without
	// retrying.
	Setup(ctx context.Context) error

	// Handle processes at most one unit of work and returns.
	Handle(ctx context.Context) error

	// Teardown releases what Setup opened. It runs after every attempt, including
	// attempts whose Setup failed.
	Teardown(ctx context.Context) error
}

// Class describes how to build a worker.
type Class struct {
	// Defaults is merged under the per-instance spec at spawn time.
	Defaults Spec

	// New builds the instance for attempt, starting at 1.
	New func(spec Spec, attempt int) (Worker, error)
}

// Reporter receives final failures, one per worker that stops in error. Retried
// failures are not reported.
type Reporter interface {
	// Report is called from the supervisor goroutine after teardown. It should not
	// block for long.
	Report(ctx context.Context, failure *FailedError)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, failure *FailedError)

// Report calls f(ctx, failure).
func (f ReporterFunc) Report(ctx context.Context, failure *FailedError) {
	f(ctx, failure)
}

// Logger matches the context-aware methods of logger.LoggerClient.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// State is a supervisor lifecycle state.
type State int

const (
	// StateCreated is the state before the first attempt.
	StateCreated State = iota

	// StateSetup runs Worker.Setup.
	StateSetup

	// StateRunning calls Worker.Handle until shutdown or an error.
	StateRunning

	// StateRetrying waits SleepTime before the next attempt.
	StateRetrying

	// StateTearingDown runs Worker.Teardown.
	StateTearingDown

	// StateStopped is final.
	StateStopped
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSetup:
		return "setup"
	case StateRunning:
		return "running"
	case StateRetrying:
		return "retrying"
	case StateTearingDown:
		return "tearing_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RetryDecision is the supervisor's answer to a failed attempt.
type RetryDecision struct {
	// ShouldRetry is false once attempts are exhausted, the error is terminal or
	// shutdown was requested.
	ShouldRetry bool

	// NextAttempt is the attempt number to spawn when ShouldRetry is set
	NextAttempt int
}
