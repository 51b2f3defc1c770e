package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Standardized broker errors. TranslateError maps backend errors onto these so
// callers can classify failures without knowing which backend produced them.
var (
	// ErrConnectionFailed is returned when no broker connection can be established
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionLost is returned when an established connection drops
	ErrConnectionLost = errors.New("connection lost")

	// ErrBrokerNotAvailable is returned when the broker is not available
	ErrBrokerNotAvailable = errors.New("broker not available")

	// ErrAuthenticationFailed is returned when SASL or TLS authentication fails
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthorizationFailed is returned when an ACL denies the operation
	ErrAuthorizationFailed = errors.New("authorization failed")

	// ErrTopicNotFound is returned when the topic doesn't exist
	ErrTopicNotFound = errors.New("topic not found")

	// ErrPartitionNotFound is returned when a partition is not known or not owned
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrGroupCoordinatorNotAvailable is returned when the group coordinator is not available
	ErrGroupCoordinatorNotAvailable = errors.New("group coordinator not available")

	// ErrNotGroupCoordinator is returned when the broker is not the group coordinator
	ErrNotGroupCoordinator = errors.New("not group coordinator")

	// ErrRebalanceInProgress is returned while the consumer group is rebalancing
	ErrRebalanceInProgress = errors.New("rebalance in progress")

	// ErrOffsetOutOfRange is returned when an offset is outside the retained log
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrMessageTooLarge is returned when a record exceeds the broker size limit
	ErrMessageTooLarge = errors.New("message too large")

	// ErrLeaderNotAvailable is returned while a partition has no leader
	ErrLeaderNotAvailable = errors.New("leader not available")

	// ErrNotLeaderForPartition is returned when a request reaches a stale leader
	ErrNotLeaderForPartition = errors.New("not leader for partition")

	// ErrRequestTimedOut is returned when the broker does not answer in time
	ErrRequestTimedOut = errors.New("request timed out")

	// ErrNetworkError is returned for other I/O failures
	ErrNetworkError = errors.New("network error")

	// ErrUnsupportedVersion is returned when the broker lacks a required API version
	ErrUnsupportedVersion = errors.New("unsupported version")

	// ErrInvalidConfig is returned for unusable client settings
	ErrInvalidConfig = errors.New("invalid config")

	// ErrQueueFull is returned when a bounded produce queue stays full past its wait
	// bound. It is transient.
	ErrQueueFull = errors.New("produce queue full")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("kafka client closed")

	// ErrNotSubscribed is returned by consumer operations that need a subscription or
	// an assignment.
	ErrNotSubscribed = errors.New("consumer is not subscribed")
)

// FatalError wraps a transport-level error surfaced by a poll. A consumer worker
// returns it from Handle so the supervisor restarts the attempt.
type FatalError struct {
	// Err is the translated poll error
	Err error
}

// Error implements error.
func (e *FatalError) Error() string {
	return fmt.Sprintf("kafka fatal error: %v", e.Err)
}

// Unwrap exposes Err to errors.Is and errors.As.
func (e *FatalError) Unwrap() error {
	return e.Err
}

type errorPattern struct {
	fragment string
	err      error
}

// Checked in order; the first fragment contained in the lower-cased message wins.
var errorPatterns = []errorPattern{
	{"connection refused", ErrConnectionFailed},
	{"connection reset", ErrConnectionLost},
	{"connection closed", ErrConnectionLost},
	{"broken pipe", ErrConnectionLost},
	{"broker not available", ErrBrokerNotAvailable},
	{"sasl authentication failed", ErrAuthenticationFailed},
	{"authentication failed", ErrAuthenticationFailed},
	{"authorization failed", ErrAuthorizationFailed},
	{"not authorized", ErrAuthorizationFailed},
	{"topic not found", ErrTopicNotFound},
	{"unknown topic", ErrTopicNotFound},
	{"partition not found", ErrPartitionNotFound},
	{"unknown partition", ErrPartitionNotFound},
	{"group coordinator not available", ErrGroupCoordinatorNotAvailable},
	{"coordinator not available", ErrGroupCoordinatorNotAvailable},
	{"not coordinator", ErrNotGroupCoordinator},
	{"rebalance in progress", ErrRebalanceInProgress},
	{"offset out of range", ErrOffsetOutOfRange},
	{"message too large", ErrMessageTooLarge},
	{"message size too large", ErrMessageTooLarge},
	{"record too large", ErrMessageTooLarge},
	{"leader not available", ErrLeaderNotAvailable},
	{"not leader for partition", ErrNotLeaderForPartition},
	{"not leader or follower", ErrNotLeaderForPartition},
	{"request timed out", ErrRequestTimedOut},
	{"i/o timeout", ErrNetworkError},
	{"timeout", ErrRequestTimedOut},
	{"network", ErrNetworkError},
	{"dial", ErrNetworkError},
	{"unsupported version", ErrUnsupportedVersion},
	{"invalid config", ErrInvalidConfig},
}

// TranslateError maps a backend error onto the standardized errors above. The
// original error stays in the chain. Context errors and unknown errors are returned
// unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, known := range []error{ErrQueueFull, ErrClosed, ErrNotSubscribed} {
		if errors.Is(err, known) {
			return err
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range errorPatterns {
		if strings.Contains(msg, pattern.fragment) {
			if errors.Is(err, pattern.err) {
				return err
			}
			return fmt.Errorf("%w: %w", pattern.err, err)
		}
	}
	return err
}

// IsRetryableError reports whether err is transient and worth retrying.
func IsRetryableError(err error) bool {
	switch {
	case errors.Is(err, ErrConnectionFailed),
		errors.Is(err, ErrConnectionLost),
		errors.Is(err, ErrBrokerNotAvailable),
		errors.Is(err, ErrLeaderNotAvailable),
		errors.Is(err, ErrNotLeaderForPartition),
		errors.Is(err, ErrRequestTimedOut),
		errors.Is(err, ErrNetworkError),
		errors.Is(err, ErrGroupCoordinatorNotAvailable),
		errors.Is(err, ErrNotGroupCoordinator),
		errors.Is(err, ErrRebalanceInProgress),
		errors.Is(err, ErrQueueFull):
		return true
	default:
		return false
	}
}

// IsPermanentError reports whether err must not be retried.
func IsPermanentError(err error) bool {
	switch {
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrAuthorizationFailed),
		errors.Is(err, ErrTopicNotFound),
		errors.Is(err, ErrPartitionNotFound),
		errors.Is(err, ErrMessageTooLarge),
		errors.Is(err, ErrUnsupportedVersion),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrClosed),
		errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}

// IsAuthenticationError reports whether err is authentication-related.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrAuthorizationFailed)
}
