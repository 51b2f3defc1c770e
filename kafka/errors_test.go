package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected error
	}{
		{"connection refused", "dial tcp 127.0.0.1:9092: connection refused", ErrConnectionFailed},
		{"broker not available", "Broker Not Available", ErrBrokerNotAvailable},
		{"authentication failed", "SASL Authentication Failed", ErrAuthenticationFailed},
		{"unknown topic", "[3] Unknown Topic Or Partition", ErrTopicNotFound},
		{"offset out of range", "offset out of range", ErrOffsetOutOfRange},
		{"rebalance", "Rebalance In Progress", ErrRebalanceInProgress},
		{"too large", "Message Size Too Large", ErrMessageTooLarge},
		{"timeout", "request timed out", ErrRequestTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			original := errors.New(tt.input)
			result := TranslateError(original)
			require.ErrorIs(t, result, tt.expected)
			require.ErrorIs(t, result, original)
		})
	}
}

func TestTranslateErrorPassthrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, TranslateError(nil))

	unknown := errors.New("something odd")
	assert.Equal(t, unknown, TranslateError(unknown))

	canceled := fmt.Errorf("poll: %w", context.Canceled)
	assert.Equal(t, canceled, TranslateError(canceled))

	full := fmt.Errorf("enqueue: %w", ErrQueueFull)
	assert.Equal(t, full, TranslateError(full))

	already := fmt.Errorf("%w: connection refused", ErrConnectionFailed)
	assert.Equal(t, already, TranslateError(already))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryableError(ErrConnectionFailed))
	assert.True(t, IsRetryableError(ErrBrokerNotAvailable))
	assert.True(t, IsRetryableError(fmt.Errorf("wrapped: %w", ErrQueueFull)))
	assert.False(t, IsRetryableError(ErrAuthenticationFailed))

	assert.True(t, IsPermanentError(ErrAuthenticationFailed))
	assert.True(t, IsPermanentError(ErrTopicNotFound))
	assert.True(t, IsPermanentError(ErrClosed))
	assert.False(t, IsPermanentError(ErrConnectionFailed))

	assert.True(t, IsAuthenticationError(ErrAuthenticationFailed))
	assert.True(t, IsAuthenticationError(ErrAuthorizationFailed))
	assert.False(t, IsAuthenticationError(ErrConnectionFailed))
}

func TestFatalError(t *testing.T) {
	t.Parallel()

	err := error(&FatalError{Err: ErrBrokerNotAvailable})
	assert.ErrorIs(t, err, ErrBrokerNotAvailable)
	assert.Contains(t, err.Error(), "broker not available")

	var fatal *FatalError
	assert.ErrorAs(t, fmt.Errorf("poll: %w", err), &fatal)
}
